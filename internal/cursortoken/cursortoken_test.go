package cursortoken

import (
	"strings"
	"testing"
	"time"
)

func TestTokenKeyRoundTrip(t *testing.T) {
	t.Parallel()
	var k TokenKey
	for i := range k.UserID {
		k.UserID[i] = byte(i + 1)
	}
	for i := range k.Randomness {
		k.Randomness[i] = byte(i + 100)
	}

	t.Run("custom base64 form", func(t *testing.T) {
		t.Parallel()
		got, err := ParseTokenKey(k.String())
		if err != nil {
			t.Fatalf("ParseTokenKey: %v", err)
		}
		if got != k {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
		}
	})

	t.Run("dash decimal form", func(t *testing.T) {
		t.Parallel()
		got, err := ParseTokenKey(k.DashString())
		if err != nil {
			t.Fatalf("ParseTokenKey: %v", err)
		}
		if got != k {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
		}
	})
}

func TestExtractCredential(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"abc:the.jwt.here", "the.jwt.here"},
		{"abc%3Athe.jwt.here", "the.jwt.here"},
		{"the.jwt.here", "the.jwt.here"},
		{"a:b:the.jwt.here", "the.jwt.here"},
		{"the.jwt.here,deadbeef", "the.jwt.here"},
		{"abc:the.jwt.here,deadbeef", "the.jwt.here"},
		{"abc%3Athe.jwt.here,deadbeef", "the.jwt.here"},
	}
	for _, tt := range tests {
		if got := ExtractCredential(tt.in); got != tt.want {
			t.Errorf("ExtractCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestExtractCredentialCustomDelimiter checks that a configured
// TOKEN_DELIMITER other than comma is honored, and restores the default
// afterward so it doesn't leak into other tests.
func TestExtractCredentialCustomDelimiter(t *testing.T) {
	old := Delimiter
	Delimiter = '|'
	defer func() { Delimiter = old }()

	if got := ExtractCredential("the.jwt.here|deadbeef"); got != "the.jwt.here" {
		t.Errorf("ExtractCredential with custom delimiter = %q, want %q", got, "the.jwt.here")
	}
	if got := ExtractCredential("abc:the.jwt.here|deadbeef"); got != "the.jwt.here" {
		t.Errorf("ExtractCredential with custom delimiter = %q, want %q", got, "the.jwt.here")
	}
}

func TestParseRawTokenRejectsBadHeader(t *testing.T) {
	t.Parallel()
	bogus := "eyJhbGciOiJub25lIn0.eyJzdWIiOiJhdXRoMHwxIn0.c2ln"
	if _, err := ParseRawToken(bogus, time.Now()); err == nil {
		t.Error("expected error for non-Cursor JWT header segment")
	}
}

func TestParseRawTokenRejectsMalformed(t *testing.T) {
	t.Parallel()
	if _, err := ParseRawToken("not.a.jwt.at.all", time.Now()); err == nil {
		t.Error("expected error for malformed segment count")
	}
	if _, err := ParseRawToken(strings.Repeat("a", 5), time.Now()); err == nil {
		t.Error("expected error for non-JWT input")
	}
}

func TestPoolInternDedupesAndEvicts(t *testing.T) {
	t.Parallel()
	p := NewPool()
	raw := RawToken{Provider: "auth0", UserID: [16]byte{1}, Randomness: [8]byte{2}, End: time.Now().Add(time.Hour)}

	tok1 := p.Intern(raw)
	tok2 := p.Intern(raw)
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (same RawToken should dedupe)", p.Len())
	}

	tok1.Release()
	if _, ok := p.Lookup(raw.Key()); !ok {
		t.Error("entry evicted too early: tok2 still holds a reference")
	} else {
		// undo the extra ref Lookup just took
		Token{key: raw.Key(), in: tok2.in, p: p}.Release()
	}
	tok2.Release()
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after last release", p.Len())
	}
}
