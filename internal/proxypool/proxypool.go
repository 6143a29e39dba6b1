// Package proxypool implements the named outbound HTTP client pool of
// spec.md §4.4: a declarative map of proxy names to client-construction
// variants, with one designated "general" fallback client.
package proxypool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/dnscache"
)

// Kind discriminates a SingleProxy variant.
type Kind int

const (
	// KindNone forces "no proxy" even if the process environment sets one.
	KindNone Kind = iota
	// KindSystem uses net/http's default ProxyFromEnvironment behavior.
	KindSystem
	// KindURL routes every protocol through a fixed proxy URL.
	KindURL
)

// SingleProxy is one declared proxy pool entry (§4.4's "SingleProxy").
type SingleProxy struct {
	Kind Kind
	URL  string // only meaningful when Kind == KindURL
}

func (p SingleProxy) newClient(dial *http.Transport) (*http.Client, error) {
	t := dial.Clone()
	switch p.Kind {
	case KindNone:
		t.Proxy = nil
	case KindSystem:
		t.Proxy = http.ProxyFromEnvironment
	case KindURL:
		u, err := url.Parse(p.URL)
		if err != nil {
			return nil, fmt.Errorf("proxypool: bad proxy url %q: %w", p.URL, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: t, Timeout: 0}, nil
}

// Pool is the reader-writer-locked named-client registry described in
// §4.4 and §5 ("Proxy Pool: the pool struct itself is behind a
// reader-writer lock; the general client is read-often, rebuilt-rare").
type Pool struct {
	mu       sync.RWMutex
	declared map[string]SingleProxy
	clients  map[string]*http.Client
	general  string
	baseDial *http.Transport
}

// New returns a Pool whose clients clone baseDial (carrying shared dial
// timeouts, keepalive, TLS config) per proxy variant. A "general" entry
// using KindSystem is installed automatically if none is declared.
func New(baseDial *http.Transport) *Pool {
	p := &Pool{
		declared: make(map[string]SingleProxy),
		clients:  make(map[string]*http.Client),
		baseDial: baseDial,
	}
	_ = p.Add("general", SingleProxy{Kind: KindSystem})
	p.general = "general"
	return p
}

// Add declares name with the given variant. Idempotent: a no-op if name is
// already declared (§4.4).
func (p *Pool) Add(name string, sp SingleProxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.declared[name]; exists {
		return nil
	}
	client, err := sp.newClient(p.baseDial)
	if err != nil {
		return err
	}
	p.declared[name] = sp
	p.clients[name] = client
	return nil
}

// Remove deletes name from the pool. Removing the current general proxy is
// rejected.
func (p *Pool) Remove(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == p.general {
		return fmt.Errorf("proxypool: cannot remove the general proxy %q", name)
	}
	delete(p.declared, name)
	delete(p.clients, name)
	return nil
}

// SetGeneral designates name as the fallback client, rejecting an unknown
// name.
func (p *Pool) SetGeneral(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.declared[name]; !ok {
		return fmt.Errorf("proxypool: unknown proxy %q", name)
	}
	p.general = name
	return nil
}

// Client returns the client for name, falling back to the general client
// if name is empty or unknown (§4.7: "the client is chosen from the Proxy
// Pool by bundle.proxy_name, falling back to the general client").
func (p *Pool) Client(name string) *http.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if name != "" {
		if c, ok := p.clients[name]; ok {
			return c
		}
	}
	return p.clients[p.general]
}

// Declared returns a copy of the currently declared proxy map, for admin
// listing and persistence.
func (p *Pool) Declared() map[string]SingleProxy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]SingleProxy, len(p.declared))
	for k, v := range p.declared {
		out[k] = v
	}
	return out
}

// General returns the name of the current general proxy.
func (p *Pool) General() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.general
}

// UpdateAndSave rebuilds every client from decl in one atomic swap, then
// invokes persist with the new declared map (§4.4's "update_and_save").
// general, if non-empty, must be a key of decl.
func (p *Pool) UpdateAndSave(decl map[string]SingleProxy, general string, persist func(map[string]SingleProxy, string) error) error {
	newClients := make(map[string]*http.Client, len(decl))
	for name, sp := range decl {
		c, err := sp.newClient(p.baseDial)
		if err != nil {
			return err
		}
		newClients[name] = c
	}
	if general != "" {
		if _, ok := decl[general]; !ok {
			return fmt.Errorf("proxypool: unknown general proxy %q", general)
		}
	}

	p.mu.Lock()
	p.declared = decl
	p.clients = newClients
	if general != "" {
		p.general = general
	}
	p.mu.Unlock()

	if persist != nil {
		return persist(decl, general)
	}
	return nil
}

// DefaultTransport builds the shared *http.Transport every proxy variant
// clones from, parameterized by the configured service timeout and TCP
// keepalive (§4.7). When resolver is non-nil, outbound dials resolve
// through it instead of the stdlib resolver, amortizing DNS lookups across
// the many short-lived connections a token pool opens to api2.cursor.sh.
func DefaultTransport(dialTimeout, keepAlive time.Duration, resolver *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}
	t := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if resolver == nil {
		t.DialContext = dialer.DialContext
		return t
	}
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
	}
	return t
}
