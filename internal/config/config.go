// Package config loads the gateway's deployment configuration: a YAML file
// (proxy declarations, server/database settings) layered with the
// environment-variable surface spec.md §6 names as the primary runtime
// knobs (AUTH_TOKEN, KEY_PREFIX, SAFE_HASH, ...). Environment variables
// always win over the file, matching the teacher's "${VAR}" expansion
// idiom generalized one step further to whole-field overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Proxies  []ProxyEntry   `yaml:"proxies"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RoutePrefix     string        `yaml:"route_prefix"` // ROUTE_PREFIX
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQLite settings for the four persisted stores
// (§6: "tokens.bin, logs.bin, proxies.bin, config.bin").
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds the four admission classes' static configuration (§4.5).
type AuthConfig struct {
	AdminToken             string `yaml:"admin_token"`      // AUTH_TOKEN, required non-empty
	ShareToken             string `yaml:"share_token"`       // "" disables class 2
	KeyPrefix              string `yaml:"key_prefix"`        // KEY_PREFIX, default "sk-"
	TokenDelimiter         string `yaml:"token_delimiter"`   // TOKEN_DELIMITER, default ","
	DynamicKeyEnabled      bool   `yaml:"dynamic_key_enabled"`
	AllowedProviders       []string `yaml:"allowed_providers"` // ALLOWED_PROVIDERS
	BypassModelValidation  bool   `yaml:"bypass_model_validation"`
	RequestLogsLimit       int    `yaml:"request_logs_limit"` // REQUEST_LOGS_LIMIT
	SafeHash               bool   `yaml:"safe_hash"`           // SAFE_HASH, default true
	RealUsage              bool   `yaml:"real_usage"`          // REAL_USAGE
	Debug                  bool   `yaml:"debug"`               // DEBUG
	GeneralTimezone        string `yaml:"general_timezone"`    // GENERAL_TIMEZONE
}

// UpstreamConfig mirrors internal/upstream.Config's deployment knobs (§4.7, §6).
type UpstreamConfig struct {
	ClientVersion    string        `yaml:"client_version"`     // CURSOR_CLIENT_VERSION, default "1.0.0"
	ReverseProxyHost string        `yaml:"reverse_proxy_host"`
	ServiceTimeout   time.Duration `yaml:"service_timeout"`    // SERVICE_TIMEOUT, capped at 600s
	TCPKeepalive     time.Duration `yaml:"tcp_keepalive"`      // TCP_KEEPALIVE, capped at 600s
	Platform         string        `yaml:"platform"`
	VisionPolicy     string        `yaml:"vision_policy"` // "none" | "base64" | "all"
	LongContext      bool          `yaml:"long_context"`
}

// ProxyEntry is one declared entry in the proxy pool (§4.4).
type ProxyEntry struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "none" | "system" | "url"
	URL  string `yaml:"url"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	TracingEnabled bool          `yaml:"tracing_enabled"`
	TracingEndpoint string       `yaml:"tracing_endpoint"`
	SampleRate     float64       `yaml:"sample_rate"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expands ${VAR} references,
// applies built-in defaults, then layers the §6 environment variables on
// top (environment always wins, matching a 12-factor deployment).
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{DSN: "gandalf.db"},
		Auth: AuthConfig{
			KeyPrefix:      "sk-",
			TokenDelimiter: ",",
			SafeHash:       true,
		},
		Upstream: UpstreamConfig{
			ClientVersion:  "1.0.0",
			ServiceTimeout: 30 * time.Second,
			TCPKeepalive:   90 * time.Second,
			Platform:       "darwin",
			VisionPolicy:   "base64",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			data = expandEnv(data)
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.Auth.AdminToken == "" {
		return nil, fmt.Errorf("config: AUTH_TOKEN (auth.admin_token) is required and must be non-empty")
	}
	return cfg, nil
}

// applyEnv overlays the spec.md §6 environment variables onto cfg. Only
// variables that are actually set are applied, so the YAML file's values
// (or the struct defaults above) remain authoritative otherwise.
func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("AUTH_TOKEN"); ok {
		cfg.Auth.AdminToken = v
	}
	if v, ok := os.LookupEnv("SHARE_TOKEN"); ok {
		cfg.Auth.ShareToken = v
	}
	if v, ok := os.LookupEnv("ROUTE_PREFIX"); ok {
		cfg.Server.RoutePrefix = v
	}
	if v, ok := os.LookupEnv("KEY_PREFIX"); ok {
		cfg.Auth.KeyPrefix = v
	}
	if v, ok := os.LookupEnv("TOKEN_DELIMITER"); ok {
		cfg.Auth.TokenDelimiter = v
	}
	if v, ok := lookupBool("SAFE_HASH"); ok {
		cfg.Auth.SafeHash = v
	}
	if v, ok := lookupBool("REAL_USAGE"); ok {
		cfg.Auth.RealUsage = v
	}
	if v, ok := os.LookupEnv("REQUEST_LOGS_LIMIT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.RequestLogsLimit = n
		}
	}
	if v, ok := lookupBool("DEBUG"); ok {
		cfg.Auth.Debug = v
	}
	if v, ok := os.LookupEnv("GENERAL_TIMEZONE"); ok {
		cfg.Auth.GeneralTimezone = v
	} else if v, ok := os.LookupEnv("TZ"); ok {
		cfg.Auth.GeneralTimezone = v
	}
	if v, ok := os.LookupEnv("ALLOWED_PROVIDERS"); ok {
		cfg.Auth.AllowedProviders = splitNonEmpty(v, ",")
	}
	if v, ok := lookupBool("BYPASS_MODEL_VALIDATION"); ok {
		cfg.Auth.BypassModelValidation = v
	}
	if v, ok := os.LookupEnv("CURSOR_CLIENT_VERSION"); ok {
		cfg.Upstream.ClientVersion = v
	}
	if v, ok := os.LookupEnv("SERVICE_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.ServiceTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("TCP_KEEPALIVE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.TCPKeepalive = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("DYNAMIC_KEY_ENABLED"); ok {
		cfg.Auth.DynamicKeyEnabled = v == "1" || strings.EqualFold(v, "true")
	}
}

func lookupBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	return v == "1" || strings.EqualFold(v, "true"), true
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
