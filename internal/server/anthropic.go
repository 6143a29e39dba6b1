package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/emitter"
	"github.com/zhengwenj/cursor-api-sub001/internal/streamdecoder"
)

// handleMessages implements POST /v1/messages (Anthropic dialect).
func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	res, ok := resultFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req gateway.AnthropicRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}

	start := time.Now()
	cursorReq, ext, err := s.deps.Assembler.AssembleAnthropic(r.Context(), &req, s.requestContext(res))
	if err != nil {
		s.recordLog(res, req.Model, req.Stream, start, err)
		writeGatewayError(w, err)
		return
	}

	resp, err := s.deps.Caller.Call(r.Context(), cursorReq, bundleFrom(res.Info))
	if err != nil {
		s.recordLog(res, req.Model, req.Stream, start, err)
		writeJSON(w, http.StatusBadGateway, errorResponse(err.Error()))
		return
	}
	defer resp.Body.Close()

	dec := streamdecoder.New()
	emitErr := emitter.EmitAnthropic(w, dec, resp.Body, emitter.AnthropicOptions{
		Model:      ext.ID,
		Stream:     req.Stream,
		Thinking:   ext.Thinking,
		PromptText: anthropicPromptText(req),
	})
	s.recordLog(res, req.Model, req.Stream, start, emitErr)
}

func anthropicPromptText(req gateway.AnthropicRequest) string {
	var b strings.Builder
	b.Write(req.System)
	for _, m := range req.Messages {
		b.Write(m.Content)
	}
	return b.String()
}
