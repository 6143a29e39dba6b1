// Package upstream implements the §4.7 Upstream Call: framing a single
// StreamUnifiedChatRequest as a Connect-RPC request over
// application/connect+proto and sending it to api2.cursor.sh (or a
// configured reverse proxy) through the proxy pool, guarded by a
// per-proxy circuit breaker.
package upstream

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhengwenj/cursor-api-sub001/internal/checksum"
	"github.com/zhengwenj/cursor-api-sub001/internal/circuitbreaker"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
)

const defaultHost = "api2.cursor.sh"

// frame type bytes, mirrored from the stream decoder's read side (§4.8).
const frameUncompressed = 0

// Bundle is the subset of a resolved credential the upstream call needs to
// build headers. It is dialect-neutral: callers (the server layer)
// populate it from an admission.Result plus its tokenstate.TokenInfo.
type Bundle struct {
	RawJWT        string
	Checksum      checksum.Checksum
	ClientKey     checksum.Hash
	SessionID     uuid.UUID
	ConfigVersion string
	Timezone      string
	ProxyName     string
}

// Config is the deployment-wide configuration for outbound calls (§6).
type Config struct {
	ClientVersion    string        // default "1.0.0"
	ReverseProxyHost string        // "" = call api2.cursor.sh directly
	Timeout          time.Duration // default 30s, capped at 600s
	KeepAlive        time.Duration // default 90s, capped at 600s
	DefaultTimezone  string        // used when the bundle carries none
	Platform         string        // "darwin" | "win32" | "linux"; drives User-Agent
}

// Normalize clamps Timeout/KeepAlive to their spec-mandated caps and fills
// defaults, returning a copy safe to use in Caller.
func (c Config) Normalize() Config {
	if c.ClientVersion == "" {
		c.ClientVersion = "1.0.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Timeout > 600*time.Second {
		c.Timeout = 600 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 90 * time.Second
	}
	if c.KeepAlive > 600*time.Second {
		c.KeepAlive = 600 * time.Second
	}
	if c.Platform == "" {
		c.Platform = "darwin"
	}
	return c
}

// Caller issues framed Connect-RPC requests against Cursor's chat
// endpoint, selecting an outbound client from the proxy pool and tripping
// a per-proxy circuit breaker on repeated failure.
//
// TLS ClientHello fingerprinting (cipher-suite order, extension order, the
// [x25519, secp256r1, secp384r1] named-group list) is an external
// collaborator per spec.md §1/§9: matching production Cursor requires a
// TLS stack with low-level ClientHello control that net/http's transport
// does not expose, and no such library appears anywhere in the retrieved
// example corpus. Caller always speaks through whatever *http.Transport
// the proxy pool hands it; swapping that transport for a fingerprinting
// one is the integration point a real deployment would need to add.
type Caller struct {
	cfg      Config
	proxies  *proxypool.Pool
	breakers *circuitbreaker.Registry
	endpoint string
}

// New returns a Caller bound to proxies and (optionally, may be nil)
// breakers. The StreamUnifiedChat RPC path matches Cursor's real AI
// service route.
func New(cfg Config, proxies *proxypool.Pool, breakers *circuitbreaker.Registry) *Caller {
	return &Caller{
		cfg:      cfg.Normalize(),
		proxies:  proxies,
		breakers: breakers,
		endpoint: "/aiserver.v1.ChatService/StreamUnifiedChatWithTools",
	}
}

// Frame encodes payload as a single Connect-RPC frame: [type:u8][len:u32be][payload].
func Frame(typ byte, payload []byte) []byte {
	out := make([]byte, 5+len(payload))
	out[0] = typ
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

// Call sends req to Cursor's chat endpoint on behalf of bundle and returns
// the raw HTTP response; the caller is responsible for reading the body
// through the stream decoder and closing it. A non-nil error here is
// always a transport-level failure (§7: "connect failure, TLS failure,
// timeout" -- map to 502/504 at the HTTP boundary).
func (c *Caller) Call(ctx context.Context, req *cursorpb.StreamUnifiedChatRequest, b Bundle) (*http.Response, error) {
	body := Frame(frameUncompressed, req.Marshal())

	host := defaultHost
	if c.cfg.ReverseProxyHost != "" {
		host = c.cfg.ReverseProxyHost
	}
	url := "https://" + host + c.endpoint

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	c.setHeaders(httpReq, b)
	if c.cfg.ReverseProxyHost != "" {
		httpReq.Header.Set("x-co", defaultHost)
	}

	client := c.clientFor(b.ProxyName)
	breaker := c.breakerFor(b.ProxyName)
	if breaker != nil && !breaker.Allow() {
		return nil, fmt.Errorf("upstream: circuit open for proxy %q", proxyLabel(b.ProxyName))
	}

	resp, err := client.Do(httpReq)
	if breaker != nil {
		recordBreakerOutcome(breaker, resp, err)
	}
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	return resp, nil
}

// statusError carries a raw HTTP status from the reverse proxy/Connect-RPC
// transport (not a decoded ChatError -- those arrive inside a 200 stream
// body and never reach here) so it can be weighed by
// circuitbreaker.ClassifyError the same way the teacher's provider clients
// weighed their own apiError.HTTPStatus().
type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("upstream: status %d", e.status) }
func (e *statusError) HTTPStatus() int { return e.status }

// recordBreakerOutcome weights a single Call's outcome into the proxy's
// circuit breaker, mirroring the teacher's internal/app/proxy.go
// recordBreakerError/recordBreakerSuccess split: a zero-weight classification
// (a plain 4xx, the caller's fault rather than the proxy's) touches the
// breaker's window not at all, neither as a success nor a failure.
func recordBreakerOutcome(breaker *circuitbreaker.Breaker, resp *http.Response, err error) {
	if err != nil {
		if weight := circuitbreaker.ClassifyError(err); weight > 0 {
			breaker.RecordError(weight)
		}
		return
	}
	if resp.StatusCode >= 400 {
		if weight := circuitbreaker.ClassifyError(&statusError{status: resp.StatusCode}); weight > 0 {
			breaker.RecordError(weight)
		}
		return
	}
	breaker.RecordSuccess()
}

func (c *Caller) clientFor(proxyName string) *http.Client {
	if c.proxies == nil {
		return http.DefaultClient
	}
	if client := c.proxies.Client(proxyName); client != nil {
		return client
	}
	return c.proxies.Client(c.proxies.General())
}

func (c *Caller) breakerFor(proxyName string) *circuitbreaker.Breaker {
	if c.breakers == nil {
		return nil
	}
	name := proxyName
	if name == "" && c.proxies != nil {
		name = c.proxies.General()
	}
	if name == "" {
		return nil
	}
	return c.breakers.GetOrCreate(name)
}

func proxyLabel(name string) string {
	if name == "" {
		return "(general)"
	}
	return name
}

func (c *Caller) setHeaders(req *http.Request, b Bundle) {
	h := req.Header
	h.Set("Content-Type", "application/connect+proto")
	h.Set("Authorization", "Bearer "+b.RawJWT)
	h.Set("x-cursor-checksum", b.Checksum.String())
	h.Set("x-cursor-client-version", c.cfg.ClientVersion)
	h.Set("x-client-key", hex.EncodeToString(b.ClientKey[:]))
	if b.SessionID != uuid.Nil {
		h.Set("x-session-id", b.SessionID.String())
	}
	if b.ConfigVersion != "" {
		h.Set("x-cursor-config-version", b.ConfigVersion)
	}
	tz := b.Timezone
	if tz == "" {
		tz = c.cfg.DefaultTimezone
	}
	if tz != "" {
		h.Set("x-cursor-timezone", tz)
	}
	h.Set("x-ghost-mode", "true")
	reqID := uuid.New().String()
	h.Set("x-request-id", reqID)
	h.Set("x-amzn-trace-id", reqID)
	h.Set("User-Agent", userAgent(c.cfg.Platform, c.cfg.ClientVersion))
	h.Set("connect-protocol-version", "1")
	h.Set("connect-accept-encoding", "gzip")
}

// userAgent renders the platform-conditional Cursor client string (§4.7).
func userAgent(platform, version string) string {
	return fmt.Sprintf("Cursor/%s (%s)", version, platform)
}
