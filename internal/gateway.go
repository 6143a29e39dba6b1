// Package gateway defines domain types shared across the Cursor gateway.
// This package has no project imports -- it is the dependency root.
package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// --- Inbound dialects ---

// ChatRequest is an OpenAI-compatible /v1/chat/completions request body.
type ChatRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    *StreamOptions  `json:"stream_options,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	User             string          `json:"user,omitempty"`
	Tools            json.RawMessage `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
}

// StreamOptions controls OpenAI-dialect streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Message is a single OpenAI-dialect chat message. Content may be a plain
// string or an array of {type, text|image_url} parts; the assembler
// normalizes either shape.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicRequest is an Anthropic-compatible /v1/messages request body.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []AnthropicMessage `json:"messages"`
	System      json.RawMessage    `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

// AnthropicMessage is a single Anthropic-dialect message.
type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Usage carries token accounting, estimated when the upstream does not
// report exact counts (usage is observed, never enforced).
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Normalized conversation (assembler output consumed by the protobuf encoder) ---

// ImagePart is a validated, dimension-probed image attached to a user message.
type ImagePart struct {
	MimeType string
	Bytes    []byte
	Width    int
	Height   int
}

// WebReference is a single {url, title} pair recovered from either an
// assistant "WebReferences:" block or an upstream web_citation frame.
type WebReference struct {
	URL   string
	Title string
}

// ConversationTurn is one normalized message ready for protobuf assembly.
type ConversationTurn struct {
	Role          string // "user" | "assistant"
	Text          string
	Images        []ImagePart
	WebRefs       []WebReference
	ExternalLinks []string
}

// --- Request-scoped identity / admission ---

// AuthClass identifies which of the four admission paths accepted a request.
type AuthClass string

const (
	AuthAdmin   AuthClass = "admin"
	AuthShare   AuthClass = "share"
	AuthDirect  AuthClass = "direct"
	AuthDynamic AuthClass = "dynamic"
)

// KeyOverlay is the per-dynamic-key policy overlay decoded from a KeyConfig.
type KeyOverlay struct {
	VisionDisabled     bool
	SlowPool           bool
	UsageCheckModels   []string
	IncludeWebRefs     bool
}

// Identity is the admission result attached to the request context.
type Identity struct {
	Class   AuthClass
	Overlay *KeyOverlay // non-nil only for AuthDynamic
}

// --- Context keys ---

type contextKey int

const ctxKeyMeta contextKey = 0

// requestMeta bundles per-request values into a single context allocation.
type requestMeta struct {
	RequestID string
	Identity  *Identity
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// IdentityFromContext extracts the admission result from context.
func IdentityFromContext(ctx context.Context) *Identity {
	if m := metaFromContext(ctx); m != nil {
		return m.Identity
	}
	return nil
}

// ContextWithIdentity stores the identity in the existing requestMeta if
// present, avoiding a second allocation; falls back to creating new metadata.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.Identity = id
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{Identity: id})
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// --- RequestLog (bounded ring, §4.3) ---

// LogStatus is the terminal state of a RequestLog entry.
type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSuccess LogStatus = "success"
	LogFailure LogStatus = "failure"
)

// RequestLog is immutable after Status transitions away from LogPending.
type RequestLog struct {
	ID        uint64
	Timestamp time.Time
	Model     string
	TokenKey  string // TokenKey.String()
	TimingMS  int64
	Stream    bool
	Status    LogStatus
	ErrorMsg  string
	Usage     *Usage
}
