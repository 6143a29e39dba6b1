// Package storage defines persistence interfaces for the gateway's four
// pieces of durable state (§6: "tokens.bin, logs.bin, proxies.bin,
// config.bin"), replaced here by SQLite tables rewritten in full on every
// save -- see DESIGN.md for why the source's mmap-rkyv dump became a
// relational store instead.
package storage

import (
	"context"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
)

// TokenStore persists the Token Manager's sparse registry.
type TokenStore interface {
	SaveTokens(ctx context.Context, recs []tokenstate.Record) error
	LoadTokens(ctx context.Context) ([]tokenstate.Record, error)
}

// LogStore persists the Log Manager's request log ring.
type LogStore interface {
	SaveLogs(ctx context.Context, logs []gateway.RequestLog) error
	LoadLogs(ctx context.Context) ([]gateway.RequestLog, error)
}

// ProxyRecord is one declared proxy pool entry in its persisted shape.
type ProxyRecord struct {
	Name string
	Kind proxypool.Kind
	URL  string
}

// ProxyStore persists the Proxy Pool's declared map and general selection.
type ProxyStore interface {
	SaveProxies(ctx context.Context, declared []ProxyRecord, general string) error
	LoadProxies(ctx context.Context) ([]ProxyRecord, string, error)
}

// ConfigStore persists admin-overridden configuration values (the
// "admin page-override store", §9 Design Notes) as a flat key/value map
// layered over the process environment.
type ConfigStore interface {
	SaveConfig(ctx context.Context, values map[string]string) error
	LoadConfig(ctx context.Context) (map[string]string, error)
}

// Store combines all four persistence surfaces.
type Store interface {
	TokenStore
	LogStore
	ProxyStore
	ConfigStore
	Ping(ctx context.Context) error
	Close() error
}
