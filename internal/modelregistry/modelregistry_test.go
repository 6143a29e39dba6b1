package modelregistry

import (
	"testing"
	"time"
)

func TestDisplayNameExamples(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"gpt-4o":            "GPT 4o",
		"claude-3-7-sonnet":  "Claude 3.7 Sonnet",
		"o3-mini":            "O3 Mini",
		"gemini-2.5-pro":     "Gemini 2.5 Pro",
		"deepseek-r1":        "Deepseek R1",
	}
	for id, want := range cases {
		if got := displayName(id); got != want {
			t.Errorf("displayName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestResolveSuffixParsing(t *testing.T) {
	t.Parallel()
	r := New(DefaultDescriptors(), false)

	m, err := r.Resolve("gpt-4.1-online")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !m.Web || m.Max {
		t.Errorf("got Web=%v Max=%v, want Web=true Max=false", m.Web, m.Max)
	}

	m, err = r.Resolve("gpt-4.1-max")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !m.Max {
		t.Error("expected Max=true")
	}
}

func TestResolveRejectsMaxOnNonMaxModel(t *testing.T) {
	t.Parallel()
	r := New(DefaultDescriptors(), false)
	if _, err := r.Resolve("gpt-4o-max"); err == nil {
		t.Error("expected rejection: gpt-4o does not allow -max")
	}
}

func TestResolveUnknownRejectedWithoutBypass(t *testing.T) {
	t.Parallel()
	r := New(DefaultDescriptors(), false)
	if _, err := r.Resolve("totally-unknown-model"); err == nil {
		t.Error("expected rejection for unknown model")
	}
}

func TestResolveBypassInfersCapabilities(t *testing.T) {
	t.Parallel()
	r := New(DefaultDescriptors(), true)
	m, err := r.Resolve("grok-4-turbo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !m.Thinking {
		t.Error("expected bypass-mode thinking inference for grok-4 prefix")
	}
}

func TestRefreshThrottleAndRejection(t *testing.T) {
	t.Parallel()
	r := New(DefaultDescriptors(), false)
	now := time.Unix(1_700_000_000, 0)

	if err := r.Refresh(now, nil); err == nil {
		t.Error("expected rejection of empty refresh")
	}

	fresh := []Descriptor{{ID: "new-model", AllowsMax: true}}
	if err := r.Refresh(now, fresh); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := r.Refresh(now.Add(time.Minute), fresh); err == nil {
		t.Error("expected throttle rejection within 30 minutes")
	}
	if err := r.Refresh(now.Add(31*time.Minute), fresh); err == nil {
		t.Error("expected rejection for an unchanged list even past the throttle window")
	}
}
