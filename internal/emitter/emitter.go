// Package emitter implements the §4.9 Response Emitter: it drains a
// streamdecoder.Decoder fed from a Cursor upstream response body and
// renders either dialect (OpenAI or Anthropic), streaming or not, honoring
// the decoder's first-result buffering so that an upstream error seen
// before any content commits as an HTTP error rather than a partial 200.
package emitter

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhengwenj/cursor-api-sub001/internal/cerr"
	"github.com/zhengwenj/cursor-api-sub001/internal/streamdecoder"
)

// silenceThreshold bounds consecutive empty Feed calls before the emitter
// gives up on the upstream; drain then surfaces a 533 "upstream_failure"
// error (§7, "break out as 533 Upstream Failure").
const silenceThreshold = 64

const readChunk = 32 * 1024

// Pre-allocated SSE framing bytes.
var (
	sseDataPrefix = []byte("data: ")
	sseNewline    = []byte("\n\n")
	sseDone       = []byte("data: [DONE]\n\n")
)

func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSEData(w io.Writer, data []byte) {
	w.Write(sseDataPrefix)
	w.Write(data)
	w.Write(sseNewline)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// ResponseID returns a fresh "chatcmpl-"-style identifier for one response.
func ResponseID(prefix string) string {
	return prefix + uuid.New().String()
}

// estimateTokens is a rough, non-authoritative token estimate (chars/4):
// usage is observed for client visibility, never enforced (§6 REAL_USAGE,
// gateway.Usage doc comment).
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// sink collects a decoder's output across the whole call, tracking plain
// text content (with WebReference events inlined per §4.8's convert flag)
// and surfacing the first error encountered, wherever in the stream it
// appears.
type sink struct {
	text strings.Builder
	err  *cerr.Error
	done bool
}

func (s *sink) consume(events []streamdecoder.Event) {
	for _, ev := range events {
		ev = streamdecoder.InlineWebReferences(ev)
		switch ev.Kind {
		case streamdecoder.EventContent:
			s.text.WriteString(ev.Text)
		case streamdecoder.EventError:
			if s.err == nil {
				s.err = ev.Err
			}
		case streamdecoder.EventStreamEnd:
			s.done = true
		}
	}
}

// drain reads body to completion (or until an error surfaces, or the
// first-result gate closes the question of success/failure) feeding dec
// and accumulating into a sink. It returns once EventStreamEnd is seen, an
// error event is seen, the body is exhausted, or ctx-less read fails.
func drain(dec *streamdecoder.Decoder, body io.Reader) (*sink, error) {
	s := &sink{}
	buf := make([]byte, readChunk)
	firstTaken := false
	for {
		if !firstTaken && dec.IsFirstResultReady() {
			events, ok := dec.TakeFirstResult()
			if ok {
				s.consume(events)
			}
			firstTaken = true
			if s.err != nil || s.done {
				return s, nil
			}
		}
		n, readErr := body.Read(buf)
		if n > 0 {
			events := dec.Feed(buf[:n])
			if firstTaken {
				s.consume(events)
			}
		}
		if dec.EmptyStreak() > silenceThreshold {
			if s.err == nil {
				s.err = cerr.New(533, "upstream_failure", "upstream stream silence")
			}
			return s, nil
		}
		if readErr != nil {
			if readErr == io.EOF {
				if !firstTaken {
					if events, ok := dec.TakeFirstResult(); ok {
						s.consume(events)
					}
				}
				return s, nil
			}
			return s, readErr
		}
		if s.err != nil || s.done {
			return s, nil
		}
	}
}

// liveWriter streams decoded events to an http.ResponseWriter as they
// arrive, calling emit for every batch after the 200 status has been
// committed. It is used once TakeFirstResult has proven the call a
// success.
type liveWriter struct {
	w     http.ResponseWriter
	emit  func(events []streamdecoder.Event)
	final func()
}

func newLiveWriter(w http.ResponseWriter, emit func([]streamdecoder.Event), final func()) *liveWriter {
	return &liveWriter{w: w, emit: emit, final: final}
}

// run streams body through dec, calling lw.emit for every produced batch
// (including any buffered first-result events already taken by the
// caller), until EOF, StreamEnd, or silence threshold.
func (lw *liveWriter) run(dec *streamdecoder.Decoder, body io.Reader, seed []streamdecoder.Event) {
	if len(seed) > 0 {
		lw.emit(seed)
		flush(lw.w)
	}
	buf := make([]byte, readChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			events := dec.Feed(buf[:n])
			if len(events) > 0 {
				lw.emit(events)
				flush(lw.w)
			}
		}
		if dec.EmptyStreak() > silenceThreshold {
			break
		}
		if err != nil {
			break
		}
	}
	lw.final()
	flush(lw.w)
}

func writeJSONError(w http.ResponseWriter, e *cerr.Error, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	b, _ := json.Marshal(body)
	w.Write(b)
}

// unixNow is the chunk envelope's "created" timestamp.
func unixNow() int64 {
	return time.Now().Unix()
}
