// Package admission implements the §4.5 Auth & Admission classifier: the
// four-class scheme (admin token, share token, direct key, dynamic key)
// that resolves an inbound credential into a Cursor token bundle plus the
// Identity attached to the request context.
package admission

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/checksum"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
)

// Config is the admission-time configuration, sourced from the gateway's
// environment (§6): AUTH_TOKEN, the optional share token, and the dynamic
// key prefix/enablement (KEY_PREFIX, dynamic-key mode).
type Config struct {
	AdminToken     string
	ShareToken     string // "" disables class 2 entirely
	KeyPrefix      string // e.g. "sk-"
	DynamicEnabled bool
}

// Admitter classifies inbound credentials per §4.5 and resolves the
// selected bundle, maintaining the process-wide round-robin cursor used by
// the admin and share classes (§5: "atomic usize with fetch-add").
type Admitter struct {
	cfg    Config
	tokens *tokenstate.TokenManager
	logs   *tokenstate.LogManager
	pool   *cursortoken.Pool

	rrCursor atomic.Uint64
}

// New returns an Admitter wired to the given stores.
func New(cfg Config, tokens *tokenstate.TokenManager, logs *tokenstate.LogManager, pool *cursortoken.Pool) *Admitter {
	return &Admitter{cfg: cfg, tokens: tokens, logs: logs, pool: pool}
}

// ExtractKey pulls the bearer credential from the X-API-Key header or a
// standard "Authorization: Bearer <x>" header, preferring X-API-Key.
func ExtractKey(h http.Header) string {
	if v := h.Get("X-API-Key"); v != "" {
		return v
	}
	if v := h.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimPrefix(v, "Bearer ")
	}
	return ""
}

// Result is a successful admission outcome: the interned Token bundle to
// use upstream, the Identity to attach to the request, and the resolved
// TokenInfo (checksum, client key, proxy name, session id, ...) the
// Upstream Call component needs to build the request (§4.7's Bundle).
type Result struct {
	Bundle   cursortoken.Token
	Info     tokenstate.TokenInfo
	Identity gateway.Identity
}

// Classify runs the four-class scheme against key and returns the selected
// bundle, or one of gateway.ErrUnauthorized / gateway.ErrNotFound /
// gateway.ErrPoolEmpty.
func (a *Admitter) Classify(key string) (Result, error) {
	if key == "" {
		return Result{}, gateway.ErrUnauthorized
	}

	if a.cfg.AdminToken != "" && strings.HasPrefix(key, a.cfg.AdminToken) {
		return a.adminOrAlias(strings.TrimPrefix(key, a.cfg.AdminToken), gateway.AuthAdmin)
	}

	if a.cfg.ShareToken != "" && key == a.cfg.ShareToken {
		return a.roundRobin(gateway.AuthShare)
	}

	if tk, err := cursortoken.ParseTokenKey(key); err == nil {
		if tok, ok := a.logs.CachedBundle(tk); ok {
			resolved := ephemeralInfo(tok)
			if _, info, ok := a.tokens.GetByKey(tk); ok {
				resolved = info
			}
			return Result{Bundle: tok, Info: resolved, Identity: gateway.Identity{Class: gateway.AuthDirect}}, nil
		}
	}

	if a.cfg.DynamicEnabled && a.cfg.KeyPrefix != "" && strings.HasPrefix(key, a.cfg.KeyPrefix) {
		return a.dynamicKey(strings.TrimPrefix(key, a.cfg.KeyPrefix))
	}

	return Result{}, gateway.ErrUnauthorized
}

// adminOrAlias handles class 1: rest is either empty (round-robin) or
// "-<alias>" selecting a specific bundle.
func (a *Admitter) adminOrAlias(rest string, class gateway.AuthClass) (Result, error) {
	if rest == "" {
		return a.roundRobin(class)
	}
	alias, ok := strings.CutPrefix(rest, "-")
	if !ok {
		return Result{}, gateway.ErrUnauthorized
	}
	_, info, ok := a.tokens.GetByAlias(alias)
	if !ok {
		return Result{}, gateway.ErrNotFound
	}
	return Result{Bundle: a.pool.Intern(info.Raw), Info: info, Identity: gateway.Identity{Class: class}}, nil
}

// roundRobin advances the process-wide cursor over the currently enabled
// token ids and interns the selected one's bundle.
func (a *Admitter) roundRobin(class gateway.AuthClass) (Result, error) {
	ids := a.tokens.Enabled()
	if len(ids) == 0 {
		return Result{}, gateway.ErrPoolEmpty
	}
	n := a.rrCursor.Add(1) - 1
	id := ids[int(n%uint64(len(ids)))]
	info, ok := a.tokens.Get(id)
	if !ok {
		return Result{}, gateway.ErrPoolEmpty
	}
	return Result{Bundle: a.pool.Intern(info.Raw), Info: info, Identity: gateway.Identity{Class: class}}, nil
}

// dynamicKey handles class 4: suffix must base64-decode to a valid
// KeyConfig protobuf carrying a parseable TokenInfo (raw JWT).
func (a *Admitter) dynamicKey(suffix string) (Result, error) {
	raw, err := base64.RawURLEncoding.DecodeString(suffix)
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(suffix); err != nil {
			return Result{}, gateway.ErrUnauthorized
		}
	}

	kc, err := cursorpb.UnmarshalKeyConfig(raw)
	if err != nil || kc.RawJWT == "" {
		return Result{}, gateway.ErrUnauthorized
	}

	rt, err := cursortoken.ParseRawToken(kc.RawJWT, time.Now())
	if err != nil {
		return Result{}, gateway.ErrUnauthorized
	}

	overlay := &gateway.KeyOverlay{
		VisionDisabled:   kc.VisionDisabled,
		SlowPool:         kc.SlowPool,
		UsageCheckModels: kc.UsageCheckModels,
		IncludeWebRefs:   kc.IncludeWebReferences,
	}
	tok := a.pool.Intern(rt)
	return Result{
		Bundle:   tok,
		Info:     ephemeralInfo(tok),
		Identity: gateway.Identity{Class: gateway.AuthDynamic, Overlay: overlay},
	}, nil
}

// ephemeralInfo synthesizes a TokenInfo for a bundle that was never
// registered through the Token Manager (a bare direct-key credential, or a
// dynamic key's embedded JWT): fresh checksum, client key, and session id,
// regenerated per admission since nothing persists it across calls.
func ephemeralInfo(tok cursortoken.Token) tokenstate.TokenInfo {
	info := tokenstate.TokenInfo{
		Raw:       tok.Raw(),
		SessionID: uuid.New(),
		Checksum:  checksum.Random(),
		Enabled:   true,
	}
	_, _ = rand.Read(info.ClientKey[:])
	return info
}
