package cursorpb

import "google.golang.org/protobuf/encoding/protowire"

// Role is the ConversationMessage speaker, matching the source's
// human/ai split (§4.6 step 3).
type Role int

const (
	RoleUser Role = iota + 1
	RoleAssistant
)

// ThinkingLevel mirrors the source's enum; only Unspecified and High are
// ever emitted by the assembler (§4.6 step 7).
type ThinkingLevel int

const (
	ThinkingUnspecified ThinkingLevel = iota
	ThinkingHigh
)

// UnifiedMode is fixed to Chat for every request the gateway issues.
type UnifiedMode int

const UnifiedModeChat UnifiedMode = 1

// ImageProto is an image attachment, dimension-probed by the assembler.
type ImageProto struct {
	Data   []byte
	Width  int
	Height int
}

func (img ImageProto) marshal() []byte {
	var b builder
	b.bytesMsgRaw(1, img.Data)
	b.varint(2, uint64(img.Width))
	b.varint(3, uint64(img.Height))
	return b.bytes()
}

func (b *builder) bytesMsgRaw(num protowire.Number, raw []byte) {
	if len(raw) == 0 {
		return
	}
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, raw)
}

// WebReferenceProto is a {url, title} pair, used both for the request-side
// ComposerExternalLink/WebReferences attachment and the response-side
// WebCitation.references list.
type WebReferenceProto struct {
	URL   string
	Title string
}

func (w WebReferenceProto) marshal() []byte {
	var b builder
	b.string(1, w.URL)
	b.string(2, w.Title)
	return b.bytes()
}

// ExternalLink is a bare @http(s):// token extracted from a user message
// (§4.6 step 6), carrying a monotonically-increasing small-integer UUID.
type ExternalLink struct {
	URL  string
	UUID uint64
}

func (e ExternalLink) marshal() []byte {
	var b builder
	b.string(1, e.URL)
	b.varint(2, e.UUID)
	return b.bytes()
}

// ConversationMessage is one normalized turn ready for wire assembly.
type ConversationMessage struct {
	Text          string
	Role          Role
	Images        []ImageProto
	WebReferences []WebReferenceProto
	ExternalLinks []ExternalLink
}

func (m ConversationMessage) marshal() []byte {
	var b builder
	b.string(1, m.Text)
	b.varint(2, uint64(m.Role))
	for _, img := range m.Images {
		b.bytesMsgRaw(3, img.marshal())
	}
	for _, wr := range m.WebReferences {
		b.bytesMsgRaw(4, wr.marshal())
	}
	for _, el := range m.ExternalLinks {
		b.bytesMsgRaw(5, el.marshal())
	}
	return b.bytes()
}

// ModelDetails carries the model selection and mode flags (§4.6 step 7).
type ModelDetails struct {
	ModelName      string
	MaxMode        bool
	EnableSlowPool *bool // nil = field absent, matching the spec's "bool|absent"
}

func (m ModelDetails) marshal() []byte {
	var b builder
	b.string(1, m.ModelName)
	b.boolAlways(2, m.MaxMode)
	if m.EnableSlowPool != nil {
		b.boolAlways(3, *m.EnableSlowPool)
	}
	return b.bytes()
}

// StreamUnifiedChatRequest is the single outbound request message (§4.6
// step 7). Exactly one is sent per upstream call, framed per §4.7.
type StreamUnifiedChatRequest struct {
	Conversation         []ConversationMessage
	ExplicitContext      string // explicit_context.context
	ModelDetails         ModelDetails
	UseWeb               string // "full_search" or "" (absent)
	UnifiedMode          UnifiedMode
	ThinkingLevel        ThinkingLevel
	ShouldDisableTools   bool
	UseFullInputsContext bool
}

// Marshal encodes the request to protobuf wire bytes.
func (r StreamUnifiedChatRequest) Marshal() []byte {
	var b builder
	for _, m := range r.Conversation {
		b.bytesMsgRaw(1, m.marshal())
	}
	if r.ExplicitContext != "" {
		var ctx builder
		ctx.string(1, r.ExplicitContext)
		b.bytesMsgRaw(2, ctx.bytes())
	}
	b.bytesMsgRaw(3, r.ModelDetails.marshal())
	b.string(4, r.UseWeb)
	b.varint(5, uint64(r.UnifiedMode))
	b.varint(6, uint64(r.ThinkingLevel))
	b.boolAlways(7, r.ShouldDisableTools)
	b.boolAlways(8, r.UseFullInputsContext)
	return b.bytes()
}

// --- Response side ---

// WebCitation is the response-side list of {url, title} references a model
// consulted (§4.8).
type WebCitation struct {
	References []WebReferenceProto
}

// StreamChatResponse is the decoded payload of a type-0/type-1 frame.
type StreamChatResponse struct {
	Text         string
	FilledPrompt string
	HasPrompt    bool
	WebCitation  *WebCitation
}

// Marshal encodes a StreamChatResponse back to wire bytes. Production code
// only ever decodes this message (it is upstream's output); this exists so
// tests can build fixtures without hand-assembling frames byte by byte.
func (s StreamChatResponse) Marshal() []byte {
	var b builder
	b.string(1, s.Text)
	if s.HasPrompt {
		b.string(2, s.FilledPrompt)
	}
	if s.WebCitation != nil {
		b.bytesMsgRaw(3, s.WebCitation.marshal())
	}
	return b.bytes()
}

func (w WebCitation) marshal() []byte {
	var b builder
	for _, ref := range w.References {
		b.bytesMsgRaw(1, ref.marshal())
	}
	return b.bytes()
}

// UnmarshalStreamChatResponse decodes a StreamChatResponse from wire bytes.
// An undecodable payload is not an error per §7 (malformed protobuf yields
// no event); callers should treat a non-nil error as "drop this frame".
func UnmarshalStreamChatResponse(data []byte) (StreamChatResponse, error) {
	var out StreamChatResponse
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool {
		switch num {
		case 1:
			out.Text = string(val)
		case 2:
			out.FilledPrompt = string(val)
			out.HasPrompt = true
		case 3:
			wc, werr := unmarshalWebCitation(val)
			if werr == nil {
				out.WebCitation = &wc
			}
		}
		return true
	})
	return out, err
}

func unmarshalWebCitation(data []byte) (WebCitation, error) {
	var out WebCitation
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool {
		if num == 1 {
			ref, rerr := unmarshalWebReference(val)
			if rerr == nil {
				out.References = append(out.References, ref)
			}
		}
		return true
	})
	return out, err
}

func unmarshalWebReference(data []byte) (WebReferenceProto, error) {
	var out WebReferenceProto
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool {
		switch num {
		case 1:
			out.URL = string(val)
		case 2:
			out.Title = string(val)
		}
		return true
	})
	return out, err
}

// ErrorDetails is the decoded payload of ChatError.error.details[0].value
// (§4.11). The Error field matches the Cursor error_enum ordinals exactly
// (see internal/cerr, grounded on the Rust source's ErrorDetails::status_code).
type ErrorDetails struct {
	Error      int32
	IsExpected bool
}

// UnmarshalErrorDetails decodes an ErrorDetails message.
func UnmarshalErrorDetails(data []byte) (ErrorDetails, error) {
	var out ErrorDetails
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte, raw uint64) bool {
		switch num {
		case 1:
			out.Error = int32(raw)
		case 2:
			out.IsExpected = raw != 0
		}
		return true
	})
	return out, err
}
