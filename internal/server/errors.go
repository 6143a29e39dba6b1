package server

import (
	"encoding/json"
	"errors"
	"net/http"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cerr"
)

// writeJSON marshals v and writes it as a status-coded JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.Write(b)
}

// errorResponse renders a bare OpenAI-dialect error envelope for admission
// and transport failures that never reach a cerr.Error (§7: "returned
// synchronously as a status-coded JSON with no upstream call").
func errorResponse(msg string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	}
}

// sentinelCode maps a gateway sentinel error to the Cursor error_enum Code
// whose HTTPStatus/String give it a canonical status and client-facing
// `code` string (§7 Error Handling Design; §8 scenario 5's
// "ERROR_BAD_MODEL_NAME"). Sentinels with no taxonomy counterpart (pool
// exhaustion, conflict, transport failure) are handled by nonTaxonomyCode
// below instead of being forced into an unrelated Cursor ordinal.
var sentinelCode = map[error]cerr.Code{
	gateway.ErrUnauthorized:     cerr.Unauthorized,
	gateway.ErrForbidden:        cerr.NotHighEnoughPermissions,
	gateway.ErrNotFound:         cerr.NotFound,
	gateway.ErrBadRequest:       cerr.BadRequest,
	gateway.ErrModelNotAllowed:  cerr.BadModelName,
	gateway.ErrVisionDisabled:   cerr.BadRequest,
	gateway.ErrImageUnsupported: cerr.FileUnsupported,
}

// nonTaxonomyCode covers gateway failures outside Cursor's own error_enum
// but which still need a stable HTTP status and machine-readable code.
var nonTaxonomyCode = map[error]struct {
	status int
	code   string
}{
	gateway.ErrConflict:        {http.StatusConflict, "ERROR_CONFLICT"},
	gateway.ErrPoolEmpty:       {http.StatusServiceUnavailable, "ERROR_POOL_EMPTY"},
	gateway.ErrUpstreamFailure: {http.StatusBadGateway, "ERROR_UPSTREAM_FAILURE"},
	gateway.ErrStreamSilence:   {533, "ERROR_STREAM_SILENCE"},
}

// gatewayError converts an error returned by admission or the assembler
// into the canonical *cerr.Error used to render both dialects' error
// envelopes, populating `code` even when the error never passed through an
// upstream ChatError.
func gatewayError(err error) *cerr.Error {
	var ce *cerr.Error
	if errors.As(err, &ce) {
		return ce
	}
	for sentinel, code := range sentinelCode {
		if errors.Is(err, sentinel) {
			return cerr.New(code.HTTPStatus(), code.String(), err.Error())
		}
	}
	for sentinel, nc := range nonTaxonomyCode {
		if errors.Is(err, sentinel) {
			return cerr.New(nc.status, nc.code, err.Error())
		}
	}
	return cerr.New(http.StatusInternalServerError, "ERROR_INTERNAL", err.Error())
}

// writeGatewayError writes the canonical error response for an error
// returned by admission or the assembler, using the OpenAI envelope shape
// (both dialect handlers funnel pre-upstream failures through this, since
// at that point the client hasn't committed to either streaming shape).
func writeGatewayError(w http.ResponseWriter, err error) {
	ce := gatewayError(err)
	writeJSON(w, ce.Status, ce.ToOpenAI())
}
