package admission

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
)

// signTestToken builds a syntactically valid Cursor JWT (unverified
// signature, since ParseRawToken never checks it) for a given user id.
func signTestToken(t *testing.T, userIDHex string, end time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":        "auth0|" + userIDHex,
		"time":       "1700000000",
		"randomness": "deadbeef-0102-0304",
		"exp":        end.Unix(),
		"iss":        "https://authentication.cursor.sh",
		"scope":      "openid profile email offline_access",
		"aud":        "https://cursor.com",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newFixture(t *testing.T, cfg Config) (*Admitter, *tokenstate.TokenManager, *tokenstate.LogManager, string) {
	t.Helper()
	tokens := tokenstate.New()
	logs := tokenstate.NewLogManager(tokenstate.ModeUnlimited, 0)
	pool := cursortoken.NewPool()

	jwtStr := signTestToken(t, "00000000000000000000000000000001", time.Now().Add(time.Hour))
	raw, err := cursortoken.ParseRawToken(jwtStr, time.Now())
	if err != nil {
		t.Fatalf("ParseRawToken: %v", err)
	}
	if _, err := tokens.Add(tokenstate.TokenInfo{Raw: raw, Enabled: true}, "primary"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	return New(cfg, tokens, logs, pool), tokens, logs, jwtStr
}

func TestClassifyAdminRoundRobin(t *testing.T) {
	t.Parallel()
	a, _, _, _ := newFixture(t, Config{AdminToken: "admin-root"})

	res, err := a.Classify("admin-root")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Identity.Class != gateway.AuthAdmin {
		t.Errorf("Class = %v, want AuthAdmin", res.Identity.Class)
	}
}

func TestClassifyAdminAliasNotFound(t *testing.T) {
	t.Parallel()
	a, _, _, _ := newFixture(t, Config{AdminToken: "admin-root"})

	if _, err := a.Classify("admin-root-nope"); err != gateway.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClassifyAdminAliasFound(t *testing.T) {
	t.Parallel()
	a, _, _, _ := newFixture(t, Config{AdminToken: "admin-root"})

	res, err := a.Classify("admin-root-primary")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Identity.Class != gateway.AuthAdmin {
		t.Errorf("Class = %v, want AuthAdmin", res.Identity.Class)
	}
}

func TestClassifyShareToken(t *testing.T) {
	t.Parallel()
	a, _, _, _ := newFixture(t, Config{ShareToken: "shared-secret"})

	res, err := a.Classify("shared-secret")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Identity.Class != gateway.AuthShare {
		t.Errorf("Class = %v, want AuthShare", res.Identity.Class)
	}
}

func TestClassifyPoolEmptyReturns503Class(t *testing.T) {
	t.Parallel()
	tokens := tokenstate.New()
	logs := tokenstate.NewLogManager(tokenstate.ModeUnlimited, 0)
	pool := cursortoken.NewPool()
	a := New(Config{AdminToken: "admin-root"}, tokens, logs, pool)

	if _, err := a.Classify("admin-root"); err != gateway.ErrPoolEmpty {
		t.Errorf("err = %v, want ErrPoolEmpty", err)
	}
}

func TestClassifyDirectKeyUsesLogManagerCache(t *testing.T) {
	t.Parallel()
	_, _, logs, jwtStr := newFixture(t, Config{})
	raw, err := cursortoken.ParseRawToken(jwtStr, time.Now())
	if err != nil {
		t.Fatalf("ParseRawToken: %v", err)
	}
	pool := cursortoken.NewPool()
	tok := pool.Intern(raw)
	defer tok.Release()

	logs.PushLogWithToken(gateway.RequestLog{TokenKey: raw.Key().String()}, tok)

	a := New(Config{}, tokenstate.New(), logs, pool)
	res, err := a.Classify(raw.Key().String())
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Identity.Class != gateway.AuthDirect {
		t.Errorf("Class = %v, want AuthDirect", res.Identity.Class)
	}
}

func TestClassifyDynamicKeyOverlay(t *testing.T) {
	t.Parallel()
	jwtStr := signTestToken(t, "00000000000000000000000000000002", time.Now().Add(time.Hour))
	kc := cursorpb.KeyConfig{
		RawJWT:               jwtStr,
		VisionDisabled:       true,
		SlowPool:             true,
		UsageCheckModels:     []string{"gpt-4o"},
		IncludeWebReferences: true,
	}
	suffix := base64.RawURLEncoding.EncodeToString(kc.Marshal())

	a := New(Config{KeyPrefix: "sk-", DynamicEnabled: true}, tokenstate.New(),
		tokenstate.NewLogManager(tokenstate.ModeUnlimited, 0), cursortoken.NewPool())

	res, err := a.Classify("sk-" + suffix)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Identity.Class != gateway.AuthDynamic {
		t.Errorf("Class = %v, want AuthDynamic", res.Identity.Class)
	}
	if res.Identity.Overlay == nil || !res.Identity.Overlay.VisionDisabled || !res.Identity.Overlay.SlowPool {
		t.Errorf("overlay not propagated: %+v", res.Identity.Overlay)
	}
}

func TestClassifyUnrecognizedRejected(t *testing.T) {
	t.Parallel()
	a, _, _, _ := newFixture(t, Config{AdminToken: "admin-root"})
	if _, err := a.Classify("totally-unknown"); err != gateway.ErrUnauthorized {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// TestClassifyRoundRobinDistributesEvenly checks the §5 invariant that 3N
// consecutive admin-class requests hit each of N enabled tokens exactly
// three times.
func TestClassifyRoundRobinDistributesEvenly(t *testing.T) {
	t.Parallel()
	tokens := tokenstate.New()
	logs := tokenstate.NewLogManager(tokenstate.ModeUnlimited, 0)
	pool := cursortoken.NewPool()

	const n = 4
	for i := 0; i < n; i++ {
		jwtStr := signTestToken(t, fmt.Sprintf("%032x", i+1), time.Now().Add(time.Hour))
		raw, err := cursortoken.ParseRawToken(jwtStr, time.Now())
		if err != nil {
			t.Fatalf("ParseRawToken: %v", err)
		}
		if _, err := tokens.Add(tokenstate.TokenInfo{Raw: raw, Enabled: true}, fmt.Sprintf("tok-%d", i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	a := New(Config{AdminToken: "admin-root"}, tokens, logs, pool)

	counts := make(map[cursortoken.TokenKey]int)
	for i := 0; i < 3*n; i++ {
		res, err := a.Classify("admin-root")
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		counts[res.Bundle.Key()]++
	}
	if len(counts) != n {
		t.Fatalf("distinct tokens hit = %d, want %d", len(counts), n)
	}
	for k, c := range counts {
		if c != 3 {
			t.Errorf("token %v hit %d times, want 3", k, c)
		}
	}
}

func TestExtractKeyPrefersAPIKeyHeader(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Set("X-API-Key", "from-apikey")
	h.Set("Authorization", "Bearer from-bearer")
	if got := ExtractKey(h); got != "from-apikey" {
		t.Errorf("ExtractKey = %q, want from-apikey", got)
	}

	h2 := http.Header{}
	h2.Set("Authorization", "Bearer from-bearer")
	if got := ExtractKey(h2); got != "from-bearer" {
		t.Errorf("ExtractKey = %q, want from-bearer", got)
	}
}
