// Package streamdecoder implements the resumable framed-message decoder of
// spec.md §4.8: it consumes arbitrarily-chunked bytes from a Cursor upstream
// response body and yields typed events, buffering the initial burst so the
// caller can decide between an HTTP-error response and a streaming 200.
package streamdecoder

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"strconv"

	"github.com/zhengwenj/cursor-api-sub001/internal/cerr"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
)

// EventKind discriminates the typed events the decoder produces.
type EventKind int

const (
	EventContentStart EventKind = iota
	EventContent
	EventWebReference
	EventDebug
	EventStreamEnd
	EventError
)

// WebRef is a single {url, title} reference, kept in first-seen order.
type WebRef struct {
	URL   string
	Title string
}

// Event is one decoded unit of the upstream stream.
type Event struct {
	Kind    EventKind
	Text    string
	WebRefs []WebRef
	Err     *cerr.Error
}

// chatErrorEnvelope mirrors the upstream `ChatError` JSON shape named in
// spec.md §4.11/§8 example 2.
type chatErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Value string `json:"value"` // base64 of an ErrorDetails protobuf
	} `json:"details"`
}

// Decoder is NOT safe for concurrent use; one Decoder serves exactly one
// upstream response body.
type Decoder struct {
	buf []byte

	firstResult     []Event
	firstReady      bool
	firstTaken      bool

	emptyStreak int
}

// New returns a ready-to-use Decoder.
func New() *Decoder {
	return &Decoder{}
}

// EmptyStreak reports the number of consecutive Feed calls that produced no
// events, for the caller's heartbeat/keepalive bookkeeping.
func (d *Decoder) EmptyStreak() int { return d.emptyStreak }

// IsFirstResultReady reports whether the caller may now call TakeFirstResult.
func (d *Decoder) IsFirstResultReady() bool { return d.firstReady }

// TakeFirstResult returns the buffered first-result events exactly once.
// Subsequent calls return (nil, false).
func (d *Decoder) TakeFirstResult() ([]Event, bool) {
	if d.firstTaken {
		return nil, false
	}
	d.firstTaken = true
	out := d.firstResult
	d.firstResult = nil
	return out, true
}

// Feed appends chunk to the internal buffer and decodes as many complete
// frames as are present. Events are routed to the first-result side buffer
// until take-first-result fires (i.e. until an error appears, or the input
// buffer drains with at least one event pending); afterwards Feed returns
// events directly to the caller.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var produced []Event
	for {
		ev, n, ok := d.decodeOne(d.buf)
		if !ok {
			break
		}
		d.buf = d.buf[n:]
		if ev != nil {
			produced = append(produced, *ev)
		}
	}

	if len(produced) == 0 {
		d.emptyStreak++
	} else {
		d.emptyStreak = 0
	}

	if d.firstTaken {
		return produced
	}

	for _, ev := range produced {
		d.firstResult = append(d.firstResult, ev)
		if ev.Kind == EventError {
			d.firstReady = true
		}
	}
	if len(d.buf) == 0 && len(d.firstResult) > 0 {
		d.firstReady = true
	}
	return nil
}

// decodeOne consumes exactly one complete frame from buf, returning the
// event (nil if the frame carries no event, e.g. an unknown type or an
// unparseable payload) and the number of bytes consumed. ok is false when
// buf does not yet hold a complete frame.
func (d *Decoder) decodeOne(buf []byte) (*Event, int, bool) {
	if len(buf) < 5 {
		return nil, 0, false
	}
	typ := buf[0]
	length := binary.BigEndian.Uint32(buf[1:5])
	total := 5 + int(length)
	if len(buf) < total {
		return nil, 0, false
	}
	payload := buf[5:total]

	switch typ {
	case 0:
		if length == 0 {
			return &Event{Kind: EventContentStart}, total, true
		}
		return decodeProtoFrame(payload), total, true
	case 1:
		raw, err := gunzip(payload)
		if err != nil {
			return nil, total, true
		}
		return decodeProtoFrame(raw), total, true
	case 2:
		ev := decodeJSONFrame(payload)
		return ev, total, true
	case 3:
		raw, err := gunzip(payload)
		if err != nil {
			return nil, total, true
		}
		ev := decodeJSONFrame(raw)
		return ev, total, true
	default:
		// Other types are logged and ignored by the caller's transport
		// layer; the decoder itself just skips them.
		return nil, total, true
	}
}

func decodeProtoFrame(payload []byte) *Event {
	msg, err := cursorpb.UnmarshalStreamChatResponse(payload)
	if err != nil {
		return nil
	}
	switch {
	case msg.Text != "":
		return &Event{Kind: EventContent, Text: msg.Text}
	case msg.HasPrompt && msg.FilledPrompt != "":
		return &Event{Kind: EventDebug, Text: msg.FilledPrompt}
	case msg.WebCitation != nil && len(msg.WebCitation.References) > 0:
		refs := make([]WebRef, 0, len(msg.WebCitation.References))
		for _, r := range msg.WebCitation.References {
			refs = append(refs, WebRef{URL: r.URL, Title: r.Title})
		}
		return &Event{Kind: EventWebReference, WebRefs: refs}
	default:
		return nil
	}
}

func decodeJSONFrame(payload []byte) *Event {
	if len(payload) == 2 {
		return &Event{Kind: EventStreamEnd}
	}
	var env chatErrorEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}
	var ce *cerr.Error
	if len(env.Details) > 0 {
		raw, err := base64.StdEncoding.DecodeString(env.Details[0].Value)
		if err == nil {
			if det, derr := cursorpb.UnmarshalErrorDetails(raw); derr == nil {
				ce = cerr.FromUpstream(det.Error, det.IsExpected, env.Message, env.Code)
			}
		}
	}
	if ce == nil {
		ce = cerr.New(500, env.Code, env.Message)
	}
	return &Event{Kind: EventError, Err: ce}
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// InlineWebReferences converts a WebReference event in place to a Content
// event whose text is the numbered human-readable block described in
// spec.md §4.8's "convert-web-ref flag".
func InlineWebReferences(ev Event) Event {
	if ev.Kind != EventWebReference {
		return ev
	}
	var b bytes.Buffer
	b.WriteString("WebReferences:\n")
	for i, r := range ev.WebRefs {
		b.WriteString(formatWebRefLine(i+1, r))
	}
	b.WriteString("\n")
	return Event{Kind: EventContent, Text: b.String()}
}

func formatWebRefLine(n int, r WebRef) string {
	return strconv.Itoa(n) + ". [" + r.Title + "](" + r.URL + ")\n"
}
