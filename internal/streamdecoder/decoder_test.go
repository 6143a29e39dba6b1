package streamdecoder

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
)

func frame(typ byte, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(typ)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	b.Write(lenBuf[:])
	b.Write(payload)
	return b.Bytes()
}

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TestContentStartThenTextEvents exercises spec.md §8 example 1: preamble,
// two content chunks, then a 2-byte JSON terminator.
func TestContentStartThenTextEvents(t *testing.T) {
	t.Parallel()

	msg1 := cursorpb.StreamChatResponse{Text: "Hello"}
	msg2 := cursorpb.StreamChatResponse{Text: " world"}

	var stream bytes.Buffer
	stream.Write(frame(0, nil)) // preamble: type=0 len=0
	stream.Write(frame(0, msg1.Marshal()))
	stream.Write(frame(0, msg2.Marshal()))
	stream.Write(frame(2, []byte("{}")))

	d := New()
	var all []Event
	all = append(all, d.Feed(stream.Bytes())...)
	first, ok := d.TakeFirstResult()
	if !ok {
		t.Fatal("expected first result to be available")
	}
	all = append(first, all...)

	if len(all) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(all), all)
	}
	if all[0].Kind != EventContentStart {
		t.Errorf("event 0 = %v, want ContentStart", all[0].Kind)
	}
	if all[1].Kind != EventContent || all[1].Text != "Hello" {
		t.Errorf("event 1 = %+v, want Content(Hello)", all[1])
	}
	if all[2].Kind != EventContent || all[2].Text != " world" {
		t.Errorf("event 2 = %+v, want Content(' world')", all[2])
	}
	if all[3].Kind != EventStreamEnd {
		t.Errorf("event 3 = %v, want StreamEnd", all[3].Kind)
	}
}

// TestByteAtATimeChunkingRoundTrips is spec.md §8's stated invariant: a
// gzip-framed StreamChatResponse chunked at every byte boundary decodes to
// the same event sequence as one delivered whole.
func TestByteAtATimeChunkingRoundTrips(t *testing.T) {
	t.Parallel()

	msg := cursorpb.StreamChatResponse{Text: "piecemeal"}
	gz := gzipBytes(t, msg.Marshal())
	whole := frame(1, gz)

	wholeDecoder := New()
	wantEvents := wholeDecoder.Feed(whole)
	wantFirst, _ := wholeDecoder.TakeFirstResult()
	want := append(wantFirst, wantEvents...)

	chunked := New()
	var got []Event
	for i := 0; i < len(whole); i++ {
		got = append(got, chunked.Feed(whole[i:i+1])...)
	}
	gotFirst, ok := chunked.TakeFirstResult()
	if ok {
		got = append(gotFirst, got...)
	}

	if len(want) != len(got) || len(want) != 1 {
		t.Fatalf("event count mismatch: want %d got %d", len(want), len(got))
	}
	if want[0].Text != got[0].Text || want[0].Text != "piecemeal" {
		t.Errorf("text mismatch: want %q got %q", want[0].Text, got[0].Text)
	}
}

func TestErrorFrameSurfacesImmediately(t *testing.T) {
	t.Parallel()
	errJSON := []byte(`{"code":"ERROR_UNAUTHORIZED","message":"token expired","details":[]}`)
	d := New()
	d.Feed(frame(2, errJSON))
	if !d.IsFirstResultReady() {
		t.Fatal("expected first result ready immediately on error frame")
	}
	first, ok := d.TakeFirstResult()
	if !ok || len(first) != 1 || first[0].Kind != EventError {
		t.Fatalf("expected single error event, got %+v (ok=%v)", first, ok)
	}
}

func TestUnknownFrameTypeSkipped(t *testing.T) {
	t.Parallel()
	d := New()
	events := d.Feed(frame(9, []byte("whatever")))
	if len(events) != 0 {
		t.Fatalf("expected no events for unknown frame type, got %+v", events)
	}
	if d.EmptyStreak() != 1 {
		t.Errorf("EmptyStreak() = %d, want 1", d.EmptyStreak())
	}
}

func TestInlineWebReferences(t *testing.T) {
	t.Parallel()
	ev := Event{Kind: EventWebReference, WebRefs: []WebRef{
		{URL: "https://a.example", Title: "A"},
		{URL: "https://b.example", Title: "B"},
	}}
	out := InlineWebReferences(ev)
	if out.Kind != EventContent {
		t.Fatalf("Kind = %v, want Content", out.Kind)
	}
	want := "WebReferences:\n1. [A](https://a.example)\n2. [B](https://b.example)\n\n"
	if out.Text != want {
		t.Errorf("Text = %q, want %q", out.Text, want)
	}
}
