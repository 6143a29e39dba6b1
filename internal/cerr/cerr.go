// Package cerr implements the canonical error taxonomy of spec.md §4.11:
// mapping a decoded Cursor ErrorDetails.error ordinal to an HTTP status and
// a dialect-appropriate JSON envelope.
package cerr

import "fmt"

// Code is the Cursor error_enum ordinal, named verbatim from the match arms
// in the reference source's ErrorDetails::status_code (the one piece of
// ground truth recovered from original_source/src/chat/aiserver/v1.rs — see
// DESIGN.md).
type Code int32

const (
	Unspecified Code = iota
	BadAPIKey
	InvalidAuthID
	AuthTokenNotFound
	AuthTokenExpired
	Unauthorized
	NotLoggedIn
	NotHighEnoughPermissions
	AgentRequiresLogin
	ProUserOnly
	TaskNoPermissions
	NotFound
	UserNotFound
	TaskUUIDNotFound
	AgentEngineNotFound
	GitgraphNotFound
	FileNotFound
	FreeUserRateLimitExceeded
	ProUserRateLimitExceeded
	OpenAIRateLimitExceeded
	OpenAIAccountLimitExceeded
	GenericRateLimitExceeded
	GPT4VisionPreviewRateLimit
	APIKeyRateLimit
	BadRequest
	BadModelName
	SlashEditFileTooLong
	FileUnsupported
	ClaudeImageTooLarge
	Deprecated
	FreeUserUsageLimit
	ProUserUsageLimit
	ResourceExhausted
	OpenAI
	MaxTokens
	APIKeyNotSupported
	UserAbortedRequest
	CustomMessage
	OutdatedClient
	Debounced
	RepositoryServiceRepositoryIsNotInitialized
)

// httpStatus mirrors the reference source's ErrorDetails::status_code
// match expression exactly (grouped by status in spec.md §4.11's table,
// but the underlying ordinals are the authoritative Rust enum order).
var httpStatus = map[Code]int{
	Unspecified: 500,

	BadAPIKey:         401,
	InvalidAuthID:     401,
	AuthTokenNotFound: 401,
	AuthTokenExpired:  401,
	Unauthorized:      401,

	NotLoggedIn:              403,
	NotHighEnoughPermissions: 403,
	AgentRequiresLogin:       403,
	ProUserOnly:              403,
	TaskNoPermissions:        403,

	NotFound:             404,
	UserNotFound:         404,
	TaskUUIDNotFound:     404,
	AgentEngineNotFound:  404,
	GitgraphNotFound:     404,
	FileNotFound:         404,

	FreeUserRateLimitExceeded:  429,
	ProUserRateLimitExceeded:   429,
	OpenAIRateLimitExceeded:    429,
	OpenAIAccountLimitExceeded: 429,
	GenericRateLimitExceeded:   429,
	GPT4VisionPreviewRateLimit: 429,
	APIKeyRateLimit:            429,

	BadRequest:           400,
	BadModelName:         400,
	SlashEditFileTooLong: 400,
	FileUnsupported:      400,
	ClaudeImageTooLarge:  400,

	Deprecated:         500,
	FreeUserUsageLimit: 500,
	ProUserUsageLimit:  500,
	ResourceExhausted:  500,
	OpenAI:             500,
	MaxTokens:          500,
	APIKeyNotSupported: 500,
	UserAbortedRequest: 500,
	CustomMessage:      500,
	OutdatedClient:     500,
	Debounced:          500,
	RepositoryServiceRepositoryIsNotInitialized: 500,
}

// codeName renders the SCREAMING_SNAKE `ERROR_*` code string Cursor's own
// error_enum uses on the wire (spec.md §8 scenarios 4-5:
// "ERROR_UNAUTHORIZED", "ERROR_BAD_MODEL_NAME"). This is only the
// gateway's OWN rendering of an ordinal, used when there is no upstream
// envelope to source a code from (§4.11); when an upstream ChatError is
// present, FromUpstream carries its own envelope code through unchanged
// instead of deriving one from this table. Any ordinal outside the known
// range renders as "ERROR_UNSPECIFIED".
var codeName = map[Code]string{
	Unspecified:              "ERROR_UNSPECIFIED",
	BadAPIKey:                "ERROR_BAD_API_KEY",
	InvalidAuthID:            "ERROR_INVALID_AUTH_ID",
	AuthTokenNotFound:        "ERROR_AUTH_TOKEN_NOT_FOUND",
	AuthTokenExpired:         "ERROR_AUTH_TOKEN_EXPIRED",
	Unauthorized:             "ERROR_UNAUTHORIZED",
	NotLoggedIn:              "ERROR_NOT_LOGGED_IN",
	NotHighEnoughPermissions: "ERROR_NOT_HIGH_ENOUGH_PERMISSIONS",
	AgentRequiresLogin:       "ERROR_AGENT_REQUIRES_LOGIN",
	ProUserOnly:              "ERROR_PRO_USER_ONLY",
	TaskNoPermissions:        "ERROR_TASK_NO_PERMISSIONS",
	NotFound:                 "ERROR_NOT_FOUND",
	UserNotFound:             "ERROR_USER_NOT_FOUND",
	TaskUUIDNotFound:         "ERROR_TASK_UUID_NOT_FOUND",
	AgentEngineNotFound:      "ERROR_AGENT_ENGINE_NOT_FOUND",
	GitgraphNotFound:         "ERROR_GITGRAPH_NOT_FOUND",
	FileNotFound:             "ERROR_FILE_NOT_FOUND",
	FreeUserRateLimitExceeded:  "ERROR_FREE_USER_RATE_LIMIT_EXCEEDED",
	ProUserRateLimitExceeded:   "ERROR_PRO_USER_RATE_LIMIT_EXCEEDED",
	OpenAIRateLimitExceeded:    "ERROR_OPENAI_RATE_LIMIT_EXCEEDED",
	OpenAIAccountLimitExceeded: "ERROR_OPENAI_ACCOUNT_LIMIT_EXCEEDED",
	GenericRateLimitExceeded:   "ERROR_GENERIC_RATE_LIMIT_EXCEEDED",
	GPT4VisionPreviewRateLimit: "ERROR_GPT4_VISION_PREVIEW_RATE_LIMIT",
	APIKeyRateLimit:          "ERROR_API_KEY_RATE_LIMIT",
	BadRequest:               "ERROR_BAD_REQUEST",
	BadModelName:             "ERROR_BAD_MODEL_NAME",
	SlashEditFileTooLong:     "ERROR_SLASH_EDIT_FILE_TOO_LONG",
	FileUnsupported:          "ERROR_FILE_UNSUPPORTED",
	ClaudeImageTooLarge:      "ERROR_CLAUDE_IMAGE_TOO_LARGE",
	Deprecated:               "ERROR_DEPRECATED",
	FreeUserUsageLimit:       "ERROR_FREE_USER_USAGE_LIMIT",
	ProUserUsageLimit:        "ERROR_PRO_USER_USAGE_LIMIT",
	ResourceExhausted:        "ERROR_RESOURCE_EXHAUSTED",
	OpenAI:                   "ERROR_OPENAI",
	MaxTokens:                "ERROR_MAX_TOKENS",
	APIKeyNotSupported:       "ERROR_API_KEY_NOT_SUPPORTED",
	UserAbortedRequest:       "ERROR_USER_ABORTED_REQUEST",
	CustomMessage:            "ERROR_CUSTOM_MESSAGE",
	OutdatedClient:           "ERROR_OUTDATED_CLIENT",
	Debounced:                "ERROR_DEBOUNCED",
	RepositoryServiceRepositoryIsNotInitialized: "ERROR_REPOSITORY_SERVICE_REPOSITORY_IS_NOT_INITIALIZED",
}

// HTTPStatus returns the canonical HTTP status for code, defaulting to 500
// for any ordinal the gateway does not recognize (§4.11 "all others").
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return 500
}

// String renders the wire-visible error code string.
func (c Code) String() string {
	if s, ok := codeName[c]; ok {
		return s
	}
	return "ERROR_UNSPECIFIED"
}

// Error is the canonical gateway error, carrying everything §4.11 requires
// to render either dialect's error envelope.
type Error struct {
	Status     int
	WireCode   string
	Message    string
	IsExpected bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("cerr: %s (%d): %s", e.WireCode, e.Status, e.Message)
}

// FromUpstream builds a canonical Error from a decoded Cursor ErrorDetails
// ordinal and the enclosing ChatError envelope's own fields (§4.11). Status
// is derived from the decoded ordinal, but WireCode is the envelope's own
// `code` string verbatim — ground truth confirmed by the reference
// source's CursorError::code(), which returns self.error.code rather than
// anything derived from the decoded ordinal, and by spec.md §8 scenario 4
// (ordinal AuthTokenExpired, exposed code still "ERROR_UNAUTHORIZED"
// because that's what the envelope carried). envelopeCode falls back to
// the ordinal's own rendering only if the envelope carried no code at all.
func FromUpstream(code int32, isExpected bool, message, envelopeCode string) *Error {
	c := Code(code)
	wireCode := envelopeCode
	if wireCode == "" {
		wireCode = c.String()
	}
	return &Error{
		Status:     c.HTTPStatus(),
		WireCode:   wireCode,
		Message:    message,
		IsExpected: isExpected,
	}
}

// New builds a canonical Error for gateway-originated failures (admission,
// assembly, transport) that never passed through an upstream ChatError.
func New(status int, wireCode, message string) *Error {
	return &Error{Status: status, WireCode: wireCode, Message: message}
}

// OpenAIEnvelope is `{"error":{"message","code","type":"error","param":null}}`.
type OpenAIEnvelope struct {
	ErrorBody OpenAIErrorBody `json:"error"`
}

type OpenAIErrorBody struct {
	Message string  `json:"message"`
	Code    string  `json:"code"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
}

// ToOpenAI renders the OpenAI-dialect error envelope.
func (e *Error) ToOpenAI() OpenAIEnvelope {
	return OpenAIEnvelope{ErrorBody: OpenAIErrorBody{
		Message: e.Message,
		Code:    e.WireCode,
		Type:    "error",
	}}
}

// AnthropicEnvelope is `{"type":"error","error":{"type","message"}}`.
type AnthropicEnvelope struct {
	Type  string             `json:"type"`
	Error AnthropicErrorBody `json:"error"`
}

type AnthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToAnthropic renders the Anthropic-dialect error envelope.
func (e *Error) ToAnthropic() AnthropicEnvelope {
	return AnthropicEnvelope{Type: "error", Error: AnthropicErrorBody{
		Type:    e.WireCode,
		Message: e.Message,
	}}
}
