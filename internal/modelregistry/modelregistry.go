// Package modelregistry implements the §4.10 Model Registry: a static
// descriptor table, suffix parsing for "-online"/"-max" variants, the
// hyphen-segment display-name derivation algorithm, and bypass-mode
// capability inference for unknown model ids.
package modelregistry

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Descriptor is one model's static capability set.
type Descriptor struct {
	ID          string
	AllowsMax   bool
	Thinking    bool
	Vision      bool
	LongContext bool
}

// ExtModel is a fully-resolved model selection: the base descriptor plus
// the per-request flags derived from suffix parsing.
type ExtModel struct {
	Descriptor
	Web  bool // "-online" suffix
	Max  bool // "-max" suffix
}

// displayNames caches displayName results by model id.
var displayNames sync.Map

// DisplayName derives the cached human-readable name once per distinct id
// (§4.10's hyphen-segment algorithm).
func (m ExtModel) DisplayName() string {
	if v, ok := displayNames.Load(m.ID); ok {
		return v.(string)
	}
	name := displayName(m.ID)
	displayNames.Store(m.ID, name)
	return name
}

// Registry is the thread-safe static/dynamic model table.
type Registry struct {
	mu            sync.RWMutex
	byID          map[string]Descriptor
	lastRefresh   time.Time
	bypassInvalid bool
}

// New returns a Registry seeded with base, a minimal built-in descriptor
// set reflecting Cursor's well-known model families. bypassInvalid mirrors
// the BYPASS_MODEL_VALIDATION configuration flag (§6, §4.10).
func New(base []Descriptor, bypassInvalid bool) *Registry {
	r := &Registry{byID: make(map[string]Descriptor), bypassInvalid: bypassInvalid}
	for _, d := range base {
		r.byID[d.ID] = d
	}
	return r
}

// DefaultDescriptors returns the gateway's built-in model table.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{ID: "gpt-4o", AllowsMax: false, Vision: true},
		{ID: "gpt-4.1", AllowsMax: true, Vision: true, LongContext: true},
		{ID: "o3", AllowsMax: true, Thinking: true, Vision: true},
		{ID: "o3-mini", AllowsMax: false, Thinking: true},
		{ID: "claude-3-5-sonnet", AllowsMax: false, Vision: true},
		{ID: "claude-3-7-sonnet", AllowsMax: true, Thinking: true, Vision: true, LongContext: true},
		{ID: "gemini-2.5-pro", AllowsMax: true, Thinking: true, Vision: true, LongContext: true},
		{ID: "deepseek-r1", AllowsMax: false, Thinking: true},
		{ID: "grok-4", AllowsMax: true, Thinking: true, Vision: true},
	}
}

var suffixOnline = "-online"
var suffixMax = "-max"

// bypassThinkingPattern matches the substrings §4.10 names for inferring
// "thinking" capability in bypass mode: "-thinking", "o<digit>",
// "gemini-2.5-", "deepseek-r1", or a "grok-4" prefix.
var bypassThinkingPattern = regexp.MustCompile(`-thinking|o\d|gemini-2\.5-|deepseek-r1`)

// Resolve validates and parses a requested model id into an ExtModel,
// applying suffix parsing (§4.10) and, in bypass mode, synthesizing a
// descriptor for an unknown base id instead of rejecting it.
func (r *Registry) Resolve(id string) (ExtModel, error) {
	web := strings.HasSuffix(id, suffixOnline)
	base := strings.TrimSuffix(id, suffixOnline)
	max := strings.HasSuffix(base, suffixMax)
	base = strings.TrimSuffix(base, suffixMax)

	r.mu.RLock()
	desc, ok := r.byID[base]
	bypass := r.bypassInvalid
	r.mu.RUnlock()

	if !ok {
		if !bypass {
			return ExtModel{}, fmt.Errorf("modelregistry: bad model name %q", id)
		}
		desc = Descriptor{
			ID:        base,
			AllowsMax: true,
			Thinking:  bypassThinkingPattern.MatchString(base) || strings.HasPrefix(base, "grok-4"),
			Vision:    true,
		}
	}
	if max && !desc.AllowsMax {
		return ExtModel{}, fmt.Errorf("modelregistry: model %q does not support -max", base)
	}

	return ExtModel{Descriptor: desc, Web: web, Max: max}, nil
}

// Refresh replaces the registry's descriptor list from an upstream-fetched
// set, subject to the §4.10 throttle ("at most once per 30 min") and the
// "reject empty or unchanged" rule.
func (r *Registry) Refresh(now time.Time, fresh []Descriptor) error {
	if len(fresh) == 0 {
		return fmt.Errorf("modelregistry: refresh rejected, empty model list")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastRefresh.IsZero() && now.Sub(r.lastRefresh) < 30*time.Minute {
		return fmt.Errorf("modelregistry: refresh rejected, throttled (next allowed at %s)",
			r.lastRefresh.Add(30*time.Minute).Format(time.RFC3339))
	}

	next := make(map[string]Descriptor, len(fresh))
	for _, d := range fresh {
		next[d.ID] = d
	}
	if reflect.DeepEqual(next, r.byID) {
		return fmt.Errorf("modelregistry: refresh rejected, model list unchanged")
	}

	r.byID = next
	r.lastRefresh = now
	return nil
}

// List returns every currently registered descriptor.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}
