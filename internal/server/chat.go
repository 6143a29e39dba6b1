package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/admission"
	"github.com/zhengwenj/cursor-api-sub001/internal/assembler"
	"github.com/zhengwenj/cursor-api-sub001/internal/emitter"
	"github.com/zhengwenj/cursor-api-sub001/internal/streamdecoder"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
	"github.com/zhengwenj/cursor-api-sub001/internal/upstream"
)

const maxBodyBytes = 8 << 20

// handleChatCompletions implements POST /v1/chat/completions (§4.6/§4.7/
// §4.8/§4.9 end to end, OpenAI dialect).
func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	res, ok := resultFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	var req gateway.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}

	start := time.Now()
	cursorReq, ext, err := s.deps.Assembler.AssembleOpenAI(r.Context(), &req, s.requestContext(res))
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
	promptText := promptTextOf(req.Messages)
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
	emitErr := emitter.EmitOpenAI(w, dec, resp.Body, emitter.OpenAIOptions{
		Model:        ext.ID,
		Stream:       req.Stream,
		IncludeUsage: includeUsage,
		PromptText:   promptText,
	})
	s.recordLog(res, req.Model, req.Stream, start, emitErr)
}

// requestContext derives an assembler.RequestContext from an admission
// result's resolved TokenInfo and dynamic-key overlay (§4.6's SlowPool
// knob, §4.7's per-bundle timezone).
func (s *server) requestContext(res admission.Result) assembler.RequestContext {
	tz := res.Info.Timezone
	if tz == "" {
		tz = s.deps.DefaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	var slowPool *bool
	if res.Identity.Overlay != nil {
		v := res.Identity.Overlay.SlowPool
		slowPool = &v
	}
	return assembler.RequestContext{
		Now:        time.Now(),
		Location:   loc,
		HTTPClient: http.DefaultClient,
		SlowPool:   slowPool,
	}
}

// bundleFrom adapts a resolved TokenInfo into the upstream call's Bundle shape.
func bundleFrom(info tokenstate.TokenInfo) upstream.Bundle {
	return upstream.Bundle{
		RawJWT:        info.Raw.String(),
		Checksum:      info.Checksum,
		ClientKey:     info.ClientKey,
		SessionID:     info.SessionID,
		ConfigVersion: info.ConfigVersion,
		Timezone:      info.Timezone,
		ProxyName:     info.ProxyName,
	}
}

func promptTextOf(msgs []gateway.Message) string {
	var n int
	for _, m := range msgs {
		n += len(m.Content)
	}
	buf := make([]byte, 0, n)
	for _, m := range msgs {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}

func (s *server) recordLog(res admission.Result, model string, stream bool, start time.Time, err error) {
	if s.deps.Logs == nil {
		return
	}
	status := gateway.LogSuccess
	errMsg := ""
	if err != nil {
		status = gateway.LogFailure
		errMsg = err.Error()
	}
	log := gateway.RequestLog{
		Timestamp: start,
		Model:     model,
		TokenKey:  res.Bundle.Key().String(),
		TimingMS:  time.Since(start).Milliseconds(),
		Stream:    stream,
		Status:    status,
		ErrorMsg:  errMsg,
	}
	s.deps.Logs.PushLogWithToken(log, res.Bundle)
}
