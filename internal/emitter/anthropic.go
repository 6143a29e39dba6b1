package emitter

import (
	"encoding/json"
	"io"
	"net/http"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/streamdecoder"
)

// AnthropicOptions configures one Anthropic-dialect response.
type AnthropicOptions struct {
	Model      string
	Stream     bool
	Thinking   bool // model is a "thinking" variant; routes Debug events to thinking_delta
	PromptText string
}

func writeSSEEvent(w io.Writer, event string, payload any) {
	b, _ := json.Marshal(payload)
	w.Write([]byte("event: " + event + "\n"))
	writeSSEData(w, b)
}

// anthropicBlockKind discriminates the content block currently open on an
// Anthropic stream.
type anthropicBlockKind int

const (
	blockNone anthropicBlockKind = iota
	blockThinking
	blockText
)

// anthropicStreamer tracks the per-response state needed to emit the fixed
// Anthropic event sequence (§4.9): one message_start, alternating
// content_block_start/delta/stop per block, a trailing message_delta.
type anthropicStreamer struct {
	w              http.ResponseWriter
	id             string
	model          string
	openBlock      anthropicBlockKind
	blockIdx       int
	completionText string
}

func (s *anthropicStreamer) messageStart() {
	writeSSEEvent(s.w, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            s.id,
			"type":          "message",
			"role":          "assistant",
			"model":         s.model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": estimateTokens(s.completionText), "output_tokens": 0},
		},
	})
}

func (s *anthropicStreamer) ensureBlock(kind anthropicBlockKind) {
	if s.openBlock == kind {
		return
	}
	s.closeBlock()
	var blockType string
	switch kind {
	case blockThinking:
		blockType = "thinking"
	case blockText:
		blockType = "text"
	}
	writeSSEEvent(s.w, "content_block_start", map[string]any{
		"type":  "content_block_start",
		"index": s.blockIdx,
		"content_block": map[string]any{
			"type": blockType,
		},
	})
	s.openBlock = kind
}

func (s *anthropicStreamer) closeBlock() {
	if s.openBlock == blockNone {
		return
	}
	writeSSEEvent(s.w, "content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": s.blockIdx,
	})
	s.openBlock = blockNone
	s.blockIdx++
}

func (s *anthropicStreamer) delta(kind anthropicBlockKind, text string) {
	s.ensureBlock(kind)
	var delta map[string]any
	if kind == blockThinking {
		delta = map[string]any{"type": "thinking_delta", "thinking": text}
	} else {
		delta = map[string]any{"type": "text_delta", "text": text}
	}
	writeSSEEvent(s.w, "content_block_delta", map[string]any{
		"type":  "content_block_delta",
		"index": s.blockIdx,
		"delta": delta,
	})
}

func (s *anthropicStreamer) messageDelta(stopReason string, usage gateway.Usage) {
	s.closeBlock()
	writeSSEEvent(s.w, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": usage.CompletionTokens},
	})
	writeSSEEvent(s.w, "message_stop", map[string]any{"type": "message_stop"})
}

func (s *anthropicStreamer) errorEvent(e any) {
	writeSSEEvent(s.w, "error", e)
}

// EmitAnthropic drains dec/body and writes an Anthropic-dialect HTTP
// response (streaming SSE event sequence or a single JSON body) to w.
func EmitAnthropic(w http.ResponseWriter, dec *streamdecoder.Decoder, body io.Reader, opts AnthropicOptions) error {
	id := ResponseID("msg_")

	if !opts.Stream {
		s, err := drain(dec, body)
		if err != nil {
			return err
		}
		if s.err != nil {
			writeJSONError(w, s.err, s.err.ToAnthropic())
			return nil
		}
		content := s.text.String()
		usage := gateway.Usage{
			PromptTokens:     estimateTokens(opts.PromptText),
			CompletionTokens: estimateTokens(content),
		}
		resp := map[string]any{
			"id":    id,
			"type":  "message",
			"role":  "assistant",
			"model": opts.Model,
			"content": []map[string]any{{
				"type": "text",
				"text": content,
			}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage": map[string]any{
				"input_tokens":  usage.PromptTokens,
				"output_tokens": usage.CompletionTokens,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		b, _ := json.Marshal(resp)
		w.Write(b)
		return nil
	}

	seed, err := takeFirstResultBlocking(dec, body)
	if err != nil {
		return err
	}
	if errEv := firstError(seed.events); errEv != nil {
		writeJSONError(w, errEv, errEv.ToAnthropic())
		return nil
	}

	writeSSEHeaders(w)
	flush(w)

	st := &anthropicStreamer{w: w, id: id, model: opts.Model}
	st.messageStart()
	flush(w)

	lw := newLiveWriter(w, func(events []streamdecoder.Event) {
		for _, ev := range events {
			switch ev.Kind {
			case streamdecoder.EventDebug:
				if opts.Thinking {
					st.completionText += ev.Text
					st.delta(blockThinking, ev.Text)
				}
			case streamdecoder.EventContent:
				st.completionText += ev.Text
				st.delta(blockText, ev.Text)
			case streamdecoder.EventWebReference:
				inlined := streamdecoder.InlineWebReferences(ev)
				st.completionText += inlined.Text
				st.delta(blockText, inlined.Text)
			case streamdecoder.EventError:
				st.closeBlock()
				st.errorEvent(ev.Err.ToAnthropic())
			}
		}
	}, func() {
		usage := gateway.Usage{
			PromptTokens:     estimateTokens(opts.PromptText),
			CompletionTokens: estimateTokens(st.completionText),
		}
		st.messageDelta("end_turn", usage)
	})
	lw.run(dec, body, seed.events)
	return nil
}
