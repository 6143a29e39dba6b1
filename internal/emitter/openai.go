package emitter

import (
	"encoding/json"
	"io"
	"net/http"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cerr"
	"github.com/zhengwenj/cursor-api-sub001/internal/streamdecoder"
)

// OpenAIOptions configures one OpenAI-dialect response.
type OpenAIOptions struct {
	Model        string
	Stream       bool
	IncludeUsage bool // stream_options.include_usage
	PromptText   string
}

// buildDeltaChunk, buildFinishChunk, buildUsageChunk mirror the envelope
// idiom of the teacher's internal/provider/sseutil/chunk.go, generalized
// to this gateway's single-choice, single-upstream-attempt response shape.
func buildDeltaChunk(id, model string, delta map[string]any) []byte {
	chunk := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": unixNow(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         delta,
			"finish_reason": nil,
		}},
	}
	b, _ := json.Marshal(chunk)
	return b
}

func buildFinishChunk(id, model, finishReason string) []byte {
	chunk := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": unixNow(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": finishReason,
		}},
	}
	b, _ := json.Marshal(chunk)
	return b
}

func buildUsageChunk(id, model string, usage gateway.Usage) []byte {
	chunk := map[string]any{
		"id":      id,
		"object":  "chat.completion.chunk",
		"created": unixNow(),
		"model":   model,
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		},
	}
	b, _ := json.Marshal(chunk)
	return b
}

// EmitOpenAI drains dec/body and writes an OpenAI-dialect HTTP response
// (streaming SSE or a single JSON body) to w.
func EmitOpenAI(w http.ResponseWriter, dec *streamdecoder.Decoder, body io.Reader, opts OpenAIOptions) error {
	id := ResponseID("chatcmpl-")

	if !opts.Stream {
		s, err := drain(dec, body)
		if err != nil {
			return err
		}
		if s.err != nil {
			writeJSONError(w, s.err, s.err.ToOpenAI())
			return nil
		}
		content := s.text.String()
		usage := gateway.Usage{
			PromptTokens:     estimateTokens(opts.PromptText),
			CompletionTokens: estimateTokens(content),
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		resp := map[string]any{
			"id":      id,
			"object":  "chat.completion",
			"created": unixNow(),
			"model":   opts.Model,
			"choices": []map[string]any{{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		b, _ := json.Marshal(resp)
		w.Write(b)
		return nil
	}

	// Streaming: wait for the first-result gate before committing a status.
	seed, err := takeFirstResultBlocking(dec, body)
	if err != nil {
		return err
	}
	if errEv := firstError(seed.events); errEv != nil {
		writeJSONError(w, errEv, errEv.ToOpenAI())
		return nil
	}

	writeSSEHeaders(w)
	flush(w)

	var completion string
	lw := newLiveWriter(w, func(events []streamdecoder.Event) {
		for _, ev := range events {
			ev = streamdecoder.InlineWebReferences(ev)
			switch ev.Kind {
			case streamdecoder.EventContent:
				completion += ev.Text
				writeSSEData(w, buildDeltaChunk(id, opts.Model, map[string]any{"content": ev.Text}))
			case streamdecoder.EventError:
				writeSSEData(w, buildFinishChunk(id, opts.Model, "stop"))
			}
		}
	}, func() {
		if opts.IncludeUsage {
			usage := gateway.Usage{
				PromptTokens:     estimateTokens(opts.PromptText),
				CompletionTokens: estimateTokens(completion),
			}
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			writeSSEData(w, buildUsageChunk(id, opts.Model, usage))
		}
		w.Write(sseDone)
	})

	writeSSEData(w, buildDeltaChunk(id, opts.Model, map[string]any{"role": "assistant"}))
	flush(w)
	lw.run(dec, body, seed.events)
	return nil
}

// firstResultSeed carries the first-result events taken from the decoder.
type firstResultSeed struct {
	events []streamdecoder.Event
}

func firstError(events []streamdecoder.Event) *cerr.Error {
	for _, ev := range events {
		if ev.Kind == streamdecoder.EventError {
			return ev.Err
		}
	}
	return nil
}

// takeFirstResultBlocking reads body until the decoder's first-result gate
// opens (an error appears, or at least one event sits in a drained
// buffer), then takes and returns it.
func takeFirstResultBlocking(dec *streamdecoder.Decoder, body io.Reader) (firstResultSeed, error) {
	buf := make([]byte, readChunk)
	for !dec.IsFirstResultReady() {
		n, err := body.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
		}
		if dec.EmptyStreak() > silenceThreshold {
			break
		}
		if err != nil {
			break
		}
	}
	events, _ := dec.TakeFirstResult()
	return firstResultSeed{events: events}, nil
}
