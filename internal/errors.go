package gateway

import "errors"

// Sentinel errors for admission and assembly, returned synchronously before
// any upstream call is made (§7 Error Handling Design).
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrBadRequest      = errors.New("bad request")
	ErrModelNotAllowed = errors.New("bad model name")
	ErrVisionDisabled  = errors.New("vision disabled for this key")
	ErrImageUnsupported = errors.New("unsupported image format")
	ErrPoolEmpty       = errors.New("token pool empty")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrStreamSilence   = errors.New("upstream stream silence")
)
