// Package assembler implements the §4.6 Request Assembler: converting an
// OpenAI-style ChatRequest or Anthropic-style MessageCreateParams into the
// Cursor protobuf StreamUnifiedChatRequest.
package assembler

import (
	"context"
	"net/http"
	"strings"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/modelregistry"
)

// VisionPolicy controls how image parts are handled (§4.6 step 4).
type VisionPolicy int

const (
	VisionNone VisionPolicy = iota
	VisionBase64
	VisionAll
)

// Options is the assembler's deployment-wide configuration.
type Options struct {
	Registry     *modelregistry.Registry
	VisionPolicy VisionPolicy
	LongContext  bool // "the long-context configuration is on" (§4.6 step 7)
}

// Assembler builds Cursor protobuf requests from either inbound dialect.
type Assembler struct {
	opts Options
}

// New returns an Assembler bound to opts.
func New(opts Options) *Assembler {
	return &Assembler{opts: opts}
}

// RequestContext carries the per-request values the assembler needs but
// that do not belong on Options: the bundle's local clock, its outbound
// HTTP client (for VisionAll image fetches), and the dynamic-key overlay's
// slow-pool flag and external-link UUID seed.
type RequestContext struct {
	Now              time.Time
	Location         *time.Location
	HTTPClient       *http.Client
	SlowPool         *bool // nil => field absent in ModelDetails
	ExternalLinkSeed uint64
}

// rawMessage is the dialect-neutral intermediate the partition/normalize/
// build pipeline operates over.
type rawMessage struct {
	Role    string
	Content []byte
}

// AssembleOpenAI builds a StreamUnifiedChatRequest from an OpenAI-style
// ChatRequest.
func (a *Assembler) AssembleOpenAI(ctx context.Context, req *gateway.ChatRequest, rc RequestContext) (*cursorpb.StreamUnifiedChatRequest, modelregistry.ExtModel, error) {
	msgs := make([]rawMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, rawMessage{Role: m.Role, Content: m.Content})
	}
	return a.assemble(ctx, req.Model, msgs, rc)
}

// AssembleAnthropic builds a StreamUnifiedChatRequest from an
// Anthropic-style MessageCreateParams request.
func (a *Assembler) AssembleAnthropic(ctx context.Context, req *gateway.AnthropicRequest, rc RequestContext) (*cursorpb.StreamUnifiedChatRequest, modelregistry.ExtModel, error) {
	msgs := make([]rawMessage, 0, len(req.Messages)+1)
	if len(req.System) > 0 {
		msgs = append(msgs, rawMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, rawMessage{Role: m.Role, Content: m.Content})
	}
	return a.assemble(ctx, req.Model, msgs, rc)
}

// assemble runs steps 1-7 of §4.6 over a dialect-neutral message list.
func (a *Assembler) assemble(ctx context.Context, model string, msgs []rawMessage, rc RequestContext) (*cursorpb.StreamUnifiedChatRequest, modelregistry.ExtModel, error) {
	ext, err := a.opts.Registry.Resolve(model)
	if err != nil {
		return nil, modelregistry.ExtModel{}, gateway.ErrModelNotAllowed
	}

	system, rest := partition(msgs)
	instr := instructionsFor(system, ext, rc.Now, rc.Location)
	rest = normalizeSequence(rest)

	conv, err := a.buildConversation(ctx, rest, rc)
	if err != nil {
		return nil, modelregistry.ExtModel{}, err
	}

	req := &cursorpb.StreamUnifiedChatRequest{
		Conversation:    conv,
		ExplicitContext: instr,
		ModelDetails: cursorpb.ModelDetails{
			ModelName:      ext.ID,
			MaxMode:        ext.Max,
			EnableSlowPool: rc.SlowPool,
		},
		UnifiedMode:          cursorpb.UnifiedModeChat,
		ShouldDisableTools:   true,
		UseFullInputsContext: ext.LongContext || a.opts.LongContext,
	}
	if ext.Web {
		req.UseWeb = "full_search"
	}
	if ext.Thinking {
		req.ThinkingLevel = cursorpb.ThinkingHigh
	}
	return req, ext, nil
}

// buildConversation runs steps 4-6 over the normalized sequence.
func (a *Assembler) buildConversation(ctx context.Context, msgs []rawMessage, rc RequestContext) ([]cursorpb.ConversationMessage, error) {
	next := rc.ExternalLinkSeed
	out := make([]cursorpb.ConversationMessage, 0, len(msgs))

	for _, m := range msgs {
		parts := extractParts(m.Content)

		var textParts []string
		var images []cursorpb.ImageProto
		for _, p := range parts {
			if p.Text != "" {
				textParts = append(textParts, p.Text)
			}
			if p.Image != nil && m.Role == "user" {
				img, err := a.resolveImage(ctx, p.Image, rc)
				if err != nil {
					return nil, err
				}
				images = append(images, cursorpb.ImageProto{Data: img.Bytes, Width: img.Width, Height: img.Height})
			}
		}
		text := strings.Join(textParts, "\n")

		var webRefs []cursorpb.WebReferenceProto
		if m.Role == "assistant" {
			if refs, remainder, ok := parseWebReferences(text); ok {
				text = remainder
				for _, r := range refs {
					webRefs = append(webRefs, cursorpb.WebReferenceProto{URL: r.URL, Title: r.Title})
				}
			}
		}

		var links []cursorpb.ExternalLink
		if m.Role == "user" {
			links = extractExternalLinks(text, &next)
		}

		role := cursorpb.RoleUser
		if m.Role == "assistant" {
			role = cursorpb.RoleAssistant
		}

		out = append(out, cursorpb.ConversationMessage{
			Text:          text,
			Role:          role,
			Images:        images,
			WebReferences: webRefs,
			ExternalLinks: links,
		})
	}
	return out, nil
}
