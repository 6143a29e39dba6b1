package assembler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/modelregistry"
)

func testRegistry() *modelregistry.Registry {
	return modelregistry.New(modelregistry.DefaultDescriptors(), false)
}

func jsonContent(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestAssembleOpenAIDefaultInstructionsAndNormalization(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry(), VisionPolicy: VisionNone})
	req := &gateway.ChatRequest{
		Model: "claude-3-7-sonnet",
		Messages: []gateway.Message{
			{Role: "assistant", Content: jsonContent(t, "hi there")},
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 600_000_000, time.UTC)

	out, ext, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: now})
	if err != nil {
		t.Fatalf("AssembleOpenAI: %v", err)
	}
	if ext.ID != "claude-3-7-sonnet" {
		t.Errorf("ext.ID = %q", ext.ID)
	}
	if out.ExplicitContext == "" || !bytes.Contains([]byte(out.ExplicitContext), []byte("2026-01-02T03:04:05.600Z")) {
		t.Errorf("ExplicitContext missing formatted timestamp: %q", out.ExplicitContext)
	}
	// starts and ends with assistant -> empty user prepended and appended
	if len(out.Conversation) != 3 {
		t.Fatalf("Conversation len = %d, want 3", len(out.Conversation))
	}
	if out.Conversation[0].Role != cursorpb.RoleUser || out.Conversation[0].Text != "" {
		t.Errorf("Conversation[0] = %+v, want empty user turn", out.Conversation[0])
	}
	if out.Conversation[1].Role != cursorpb.RoleAssistant || out.Conversation[1].Text != "hi there" {
		t.Errorf("Conversation[1] = %+v", out.Conversation[1])
	}
}

func TestAssembleRejectsUnknownModel(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry()})
	req := &gateway.ChatRequest{Model: "not-a-model", Messages: []gateway.Message{
		{Role: "user", Content: jsonContent(t, "hi")},
	}}
	if _, _, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: time.Now()}); err != gateway.ErrModelNotAllowed {
		t.Errorf("err = %v, want ErrModelNotAllowed", err)
	}
}

func TestAssembleOnlineSuffixSetsUseWeb(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry()})
	req := &gateway.ChatRequest{Model: "gpt-4.1-online", Messages: []gateway.Message{
		{Role: "user", Content: jsonContent(t, "hi")},
	}}
	out, ext, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: time.Now()})
	if err != nil {
		t.Fatalf("AssembleOpenAI: %v", err)
	}
	if !ext.Web || out.UseWeb != "full_search" {
		t.Errorf("UseWeb = %q, ext.Web = %v", out.UseWeb, ext.Web)
	}
}

func TestAssembleAnthropicSystemBecomesInstructions(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry()})
	req := &gateway.AnthropicRequest{
		Model:  "claude-3-5-sonnet",
		System: jsonContent(t, "be concise"),
		Messages: []gateway.AnthropicMessage{
			{Role: "user", Content: jsonContent(t, "hi")},
		},
	}
	out, _, err := a.AssembleAnthropic(context.Background(), req, RequestContext{Now: time.Now()})
	if err != nil {
		t.Fatalf("AssembleAnthropic: %v", err)
	}
	if out.ExplicitContext != "be concise" {
		t.Errorf("ExplicitContext = %q", out.ExplicitContext)
	}
}

func TestVisionNoneRejectsImage(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry(), VisionPolicy: VisionNone})
	content := jsonContent(t, []map[string]any{
		{"type": "image_url", "image_url": map[string]string{"url": "data:image/png;base64,abc"}},
	})
	req := &gateway.ChatRequest{Model: "gpt-4o", Messages: []gateway.Message{{Role: "user", Content: content}}}
	if _, _, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: time.Now()}); err != gateway.ErrVisionDisabled {
		t.Errorf("err = %v, want ErrVisionDisabled", err)
	}
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestVisionBase64DecodesAndProbesPNG(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry(), VisionPolicy: VisionBase64})
	content := jsonContent(t, []map[string]any{
		{"type": "image_url", "image_url": map[string]string{"url": pngDataURI(t, 12, 8)}},
	})
	req := &gateway.ChatRequest{Model: "gpt-4o", Messages: []gateway.Message{{Role: "user", Content: content}}}
	out, _, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: time.Now()})
	if err != nil {
		t.Fatalf("AssembleOpenAI: %v", err)
	}
	if len(out.Conversation) != 1 || len(out.Conversation[0].Images) != 1 {
		t.Fatalf("expected one image turn, got %+v", out.Conversation)
	}
	img := out.Conversation[0].Images[0]
	if img.Width != 12 || img.Height != 8 {
		t.Errorf("Width/Height = %d/%d, want 12/8", img.Width, img.Height)
	}
}

func animatedGifDataURI(t *testing.T) string {
	t.Helper()
	frame := image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.White, color.Black})
	g := &gif.GIF{Image: []*image.Paletted{frame, frame}, Delay: []int{0, 0}}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatalf("gif encode: %v", err)
	}
	return "data:image/gif;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestVisionRejectsAnimatedGIF(t *testing.T) {
	t.Parallel()
	a := New(Options{Registry: testRegistry(), VisionPolicy: VisionBase64})
	content := jsonContent(t, []map[string]any{
		{"type": "image_url", "image_url": map[string]string{"url": animatedGifDataURI(t)}},
	})
	req := &gateway.ChatRequest{Model: "gpt-4o", Messages: []gateway.Message{{Role: "user", Content: content}}}
	if _, _, err := a.AssembleOpenAI(context.Background(), req, RequestContext{Now: time.Now()}); err != gateway.ErrImageUnsupported {
		t.Errorf("err = %v, want ErrImageUnsupported", err)
	}
}

func TestParseWebReferences(t *testing.T) {
	t.Parallel()
	text := "WebReferences:\n1. [Go Docs](https://go.dev)\n2. [Spec](https://example.com/spec)\n\nHere is the answer."
	refs, remainder, ok := parseWebReferences(text)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(refs) != 2 || refs[0].URL != "https://go.dev" || refs[1].Title != "Spec" {
		t.Errorf("refs = %+v", refs)
	}
	if remainder != "Here is the answer." {
		t.Errorf("remainder = %q", remainder)
	}
}

func TestExtractExternalLinks(t *testing.T) {
	t.Parallel()
	var next uint64 = 100
	links := extractExternalLinks("check @https://example.com/a and @http://example.com/b please", &next)
	if len(links) != 2 {
		t.Fatalf("links = %+v", links)
	}
	if links[0].UUID != 100 || links[1].UUID != 101 {
		t.Errorf("UUIDs = %d, %d", links[0].UUID, links[1].UUID)
	}
	if next != 102 {
		t.Errorf("next = %d, want 102", next)
	}
}

func TestNormalizeSequenceEmpty(t *testing.T) {
	t.Parallel()
	out := normalizeSequence(nil)
	if len(out) != 1 || out[0].Role != "user" {
		t.Errorf("out = %+v", out)
	}
}

func TestNormalizeSequenceTrailingAssistantGetsEmptyUser(t *testing.T) {
	t.Parallel()
	out := normalizeSequence([]rawMessage{{Role: "user", Content: []byte(`"hi"`)}, {Role: "assistant", Content: []byte(`"yo"`)}})
	if len(out) != 3 || out[2].Role != "user" {
		t.Errorf("out = %+v", out)
	}
}
