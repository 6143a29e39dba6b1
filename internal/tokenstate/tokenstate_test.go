package tokenstate

import (
	"testing"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
)

func rawTok(seed byte) cursortoken.RawToken {
	return cursortoken.RawToken{
		Provider:   "auth0",
		UserID:     [16]byte{seed},
		Randomness: [8]byte{seed, 1},
		End:        time.Now().Add(time.Hour),
	}
}

func TestTokenManagerAddAutoAlias(t *testing.T) {
	t.Parallel()
	m := New()
	id, err := m.Add(TokenInfo{Raw: rawTok(1), Enabled: true}, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	info, ok := m.Get(id)
	if !ok || info.Alias != "unnamed_0" {
		t.Errorf("Alias = %q, want unnamed_0", info.Alias)
	}
}

func TestTokenManagerRejectsDuplicateAlias(t *testing.T) {
	t.Parallel()
	m := New()
	if _, err := m.Add(TokenInfo{Raw: rawTok(1)}, "foo"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(TokenInfo{Raw: rawTok(2)}, "foo"); err == nil {
		t.Error("expected duplicate alias rejection")
	}
}

func TestTokenManagerRemoveRecyclesID(t *testing.T) {
	t.Parallel()
	m := New()
	id1, _ := m.Add(TokenInfo{Raw: rawTok(1)}, "a")
	if err := m.Remove(id1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	id2, _ := m.Add(TokenInfo{Raw: rawTok(2)}, "b")
	if id2 != id1 {
		t.Errorf("id2 = %d, want recycled %d", id2, id1)
	}
}

func TestTokenManagerRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	m := New()
	id, _ := m.Add(TokenInfo{Raw: rawTok(3), Enabled: true}, "alias3")

	recs := m.Snapshot()
	m2 := New()
	err := m2.Restore(recs, func(raw string) (cursortoken.RawToken, error) {
		for _, r := range recs {
			if r.Raw == raw {
				return rawTok(3), nil
			}
		}
		return cursortoken.RawToken{}, nil
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	info, ok := m2.Get(id)
	if !ok || info.Alias != "alias3" {
		t.Errorf("restored info = %+v, ok=%v", info, ok)
	}
}

func TestLogManagerDisabledIsNoop(t *testing.T) {
	t.Parallel()
	lm := NewLogManager(ModeDisabled, 0)
	_, ok := lm.PushLogWithToken(gateway.RequestLog{}, cursortoken.Token{})
	if ok {
		t.Error("expected disabled log manager to reject pushes")
	}
	if lm.Len() != 0 {
		t.Errorf("Len() = %d, want 0", lm.Len())
	}
}

func TestLogManagerLimitedEviction(t *testing.T) {
	t.Parallel()
	pool := cursortoken.NewPool()
	tok := pool.Intern(rawTok(5))
	lm := NewLogManager(ModeLimited, 2)

	for i := 0; i < 3; i++ {
		lm.PushLogWithToken(gateway.RequestLog{TokenKey: tok.Key().String()}, tok)
	}
	if lm.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (cap enforced)", lm.Len())
	}
	if _, ok := lm.CachedBundle(tok.Key()); !ok {
		t.Error("expected bundle still cached while logs reference it")
	}
}

func TestModeFromLimit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n    int
		mode Mode
	}{
		{0, ModeDisabled},
		{-1, ModeDisabled},
		{1_000_000, ModeUnlimited},
		{5_000_000, ModeUnlimited},
		{500, ModeLimited},
	}
	for _, tt := range cases {
		if got, _ := ModeFromLimit(tt.n); got != tt.mode {
			t.Errorf("ModeFromLimit(%d) = %v, want %v", tt.n, got, tt.mode)
		}
	}
}
