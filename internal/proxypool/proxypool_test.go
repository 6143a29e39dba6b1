package proxypool

import (
	"testing"
	"time"
)

func TestGeneralFallback(t *testing.T) {
	t.Parallel()
	p := New(DefaultTransport(5*time.Second, 30*time.Second, nil))
	if p.Client("unknown-name") == nil {
		t.Fatal("expected fallback to general client")
	}
	if p.Client("") == nil {
		t.Fatal("expected fallback to general client for empty name")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	t.Parallel()
	p := New(DefaultTransport(5*time.Second, 30*time.Second, nil))
	if err := p.Add("foo", SingleProxy{Kind: KindNone}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	before := p.Client("foo")
	if err := p.Add("foo", SingleProxy{Kind: KindURL, URL: "http://example.com"}); err != nil {
		t.Fatalf("Add (second): %v", err)
	}
	if p.Client("foo") != before {
		t.Error("second Add with same name should be a no-op")
	}
}

func TestSetGeneralRejectsUnknown(t *testing.T) {
	t.Parallel()
	p := New(DefaultTransport(5*time.Second, 30*time.Second, nil))
	if err := p.SetGeneral("does-not-exist"); err == nil {
		t.Error("expected rejection of unknown general proxy name")
	}
}

func TestRemoveRejectsGeneral(t *testing.T) {
	t.Parallel()
	p := New(DefaultTransport(5*time.Second, 30*time.Second, nil))
	if err := p.Remove(p.General()); err == nil {
		t.Error("expected rejection of removing the general proxy")
	}
}

func TestUpdateAndSaveSwapsAtomically(t *testing.T) {
	t.Parallel()
	p := New(DefaultTransport(5*time.Second, 30*time.Second, nil))
	decl := map[string]SingleProxy{
		"general": {Kind: KindSystem},
		"direct":  {Kind: KindNone},
	}
	var saved map[string]SingleProxy
	err := p.UpdateAndSave(decl, "direct", func(d map[string]SingleProxy, general string) error {
		saved = d
		if general != "direct" {
			t.Errorf("persist general = %q, want direct", general)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateAndSave: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("persisted %d entries, want 2", len(saved))
	}
	if p.General() != "direct" {
		t.Errorf("General() = %q, want direct", p.General())
	}
}
