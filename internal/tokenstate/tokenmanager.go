// Package tokenstate implements the Token Manager and Log Manager of
// spec.md §4.3: the sparse-vector token registry addressed by stable small
// integer ids, and the capped request-log ring with its bundle refcount
// cache.
package tokenstate

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zhengwenj/cursor-api-sub001/internal/checksum"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
)

// TokenInfo is everything the gateway tracks about one Cursor credential
// beyond the credential itself. Checksum and ClientKey are the remaining
// fields of the Bundle (glossary: "the per-Cursor-account policy object")
// that are stable for the lifetime of the entry rather than regenerated
// per call.
type TokenInfo struct {
	Raw           cursortoken.RawToken
	Alias         string
	ProxyName     string // "" = use the proxy pool's general client
	SessionID     uuid.UUID
	ConfigVersion string // "" = unset
	Timezone      string // "" = process default
	Enabled       bool
	Checksum      checksum.Checksum
	ClientKey     checksum.Hash
}

// newClientKey returns a fresh random 32-byte client key for a bundle entry
// (spec.md §3: "client_key (random 32-byte hash)").
func newClientKey() checksum.Hash {
	return checksum.RandomHash()
}

// ClientKeyHex renders the client key as the hex string the upstream call
// sends in the x-client-key header.
func (info TokenInfo) ClientKeyHex() string {
	return hex.EncodeToString(info.ClientKey[:])
}

// TokenEntry pairs a stable id with its TokenInfo, as returned by List.
type TokenEntry struct {
	ID   uint32
	Info TokenInfo
}

// unnamedPrefix is the auto-generated alias prefix used when the caller
// supplies no alias or one that collides with the auto-generated scheme.
const unnamedPrefix = "unnamed_"

// TokenManager is the sparse id -> TokenInfo registry described in §4.3.
// The zero value is not usable; construct with New.
type TokenManager struct {
	mu      sync.RWMutex
	slots   []*TokenInfo // nil entries are free slots
	free    []uint32     // FIFO free-list, oldest-removed first
	byKey   map[cursortoken.TokenKey]uint32
	byAlias map[string]uint32
}

// New returns an empty TokenManager.
func New() *TokenManager {
	return &TokenManager{
		byKey:   make(map[cursortoken.TokenKey]uint32),
		byAlias: make(map[string]uint32),
	}
}

// Add assigns info the next free id (recycled from a removed slot, or the
// next index past the end), auto-generating an "unnamed_<id>" alias when
// alias is empty or itself collides with that scheme. Duplicate aliases are
// rejected.
func (m *TokenManager) Add(info TokenInfo, alias string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id uint32
	if n := len(m.free); n > 0 {
		id = m.free[0]
		m.free = m.free[1:]
	} else {
		id = uint32(len(m.slots))
		m.slots = append(m.slots, nil)
	}

	if alias == "" || strings.HasPrefix(alias, unnamedPrefix) {
		alias = fmt.Sprintf("%s%d", unnamedPrefix, id)
	}
	if _, exists := m.byAlias[alias]; exists {
		// undo the id reservation
		m.free = append(m.free, id)
		return 0, fmt.Errorf("tokenstate: alias %q already in use", alias)
	}

	info.Alias = alias
	if info.SessionID == uuid.Nil {
		info.SessionID = uuid.New()
	}
	if info.Checksum.IsNil() {
		info.Checksum = checksum.Random()
	}
	if info.ClientKey.IsNil() {
		info.ClientKey = newClientKey()
	}
	m.slots[id] = &info
	m.byAlias[alias] = id
	m.byKey[info.Raw.Key()] = id
	return id, nil
}

// Remove deletes the entry at id, recycling the id for reuse.
func (m *TokenManager) Remove(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.slotAt(id)
	if !ok {
		return fmt.Errorf("tokenstate: no token with id %d", id)
	}
	delete(m.byAlias, info.Alias)
	delete(m.byKey, info.Raw.Key())
	m.slots[id] = nil
	m.free = append(m.free, id)
	return nil
}

// SetAlias renames the token at id, rejecting a collision with another
// entry's alias.
func (m *TokenManager) SetAlias(id uint32, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.slotAt(id)
	if !ok {
		return fmt.Errorf("tokenstate: no token with id %d", id)
	}
	if existing, exists := m.byAlias[alias]; exists && existing != id {
		return fmt.Errorf("tokenstate: alias %q already in use", alias)
	}
	delete(m.byAlias, info.Alias)
	info.Alias = alias
	m.byAlias[alias] = id
	return nil
}

func (m *TokenManager) slotAt(id uint32) (*TokenInfo, bool) {
	if int(id) >= len(m.slots) || m.slots[id] == nil {
		return nil, false
	}
	return m.slots[id], true
}

// Get returns a copy of the TokenInfo at id.
func (m *TokenManager) Get(id uint32) (TokenInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.slotAt(id)
	if !ok {
		return TokenInfo{}, false
	}
	return *info, true
}

// GetByAlias resolves an alias to its id and TokenInfo.
func (m *TokenManager) GetByAlias(alias string) (uint32, TokenInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAlias[alias]
	if !ok {
		return 0, TokenInfo{}, false
	}
	return id, *m.slots[id], true
}

// GetByKey resolves a TokenKey to its id and TokenInfo.
func (m *TokenManager) GetByKey(key cursortoken.TokenKey) (uint32, TokenInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[key]
	if !ok {
		return 0, TokenInfo{}, false
	}
	return id, *m.slots[id], true
}

// List enumerates present slots in ascending id order (deterministic).
func (m *TokenManager) List() []TokenEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TokenEntry, 0, len(m.slots)-len(m.free))
	for id, info := range m.slots {
		if info == nil {
			continue
		}
		out = append(out, TokenEntry{ID: uint32(id), Info: *info})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns the ids of every enabled token, in ascending order, for
// round-robin selection by the admission layer.
func (m *TokenManager) Enabled() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []uint32
	for id, info := range m.slots {
		if info != nil && info.Enabled {
			out = append(out, uint32(id))
		}
	}
	return out
}

// Record is the flat persisted shape of one TokenManager entry, used by the
// storage layer to snapshot/restore state (the rkyv-mmap dump of the
// source's design is replaced here by a SQLite table, see DESIGN.md).
type Record struct {
	ID            uint32
	Raw           string // the JWT string; re-parsed via cursortoken.ParseRawToken on load
	Alias         string
	ProxyName     string
	SessionID     string
	ConfigVersion string
	Timezone      string
	Enabled       bool
	ChecksumFirst string // hex
	ChecksumSecond string // hex
	ClientKey     string // hex
}

// Snapshot renders the current state as a slice of Records for persistence.
func (m *TokenManager) Snapshot() []Record {
	entries := m.List()
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, Record{
			ID:             e.ID,
			Raw:            e.Info.Raw.String(),
			Alias:          e.Info.Alias,
			ProxyName:      e.Info.ProxyName,
			SessionID:      e.Info.SessionID.String(),
			ConfigVersion:  e.Info.ConfigVersion,
			Timezone:       e.Info.Timezone,
			Enabled:        e.Info.Enabled,
			ChecksumFirst:  e.Info.Checksum.First.String(),
			ChecksumSecond: e.Info.Checksum.Second.String(),
			ClientKey:      e.Info.ClientKeyHex(),
		})
	}
	return out
}

// RestoreFunc parses a Record's raw JWT back into a RawToken; callers
// inject cursortoken.ParseRawToken (bound to "now") so this package does
// not need to carry a time source of its own.
type RestoreFunc func(raw string) (cursortoken.RawToken, error)

// Restore replaces the manager's contents with recs, parsing each entry's
// raw JWT via parse. Ids are preserved exactly (not reassigned), so the
// free-list is rebuilt from any gaps.
func (m *TokenManager) Restore(recs []Record, parse RestoreFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var maxID uint32
	for _, r := range recs {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	m.slots = make([]*TokenInfo, maxID+1)
	m.byKey = make(map[cursortoken.TokenKey]uint32)
	m.byAlias = make(map[string]uint32)
	m.free = nil

	present := make(map[uint32]bool, len(recs))
	for _, r := range recs {
		raw, err := parse(r.Raw)
		if err != nil {
			return fmt.Errorf("tokenstate: restore id %d: %w", r.ID, err)
		}
		sid, _ := uuid.Parse(r.SessionID)
		first, _ := checksum.ParseHash(r.ChecksumFirst)
		second, _ := checksum.ParseHash(r.ChecksumSecond)
		var clientKey checksum.Hash
		if b, err := hex.DecodeString(r.ClientKey); err == nil {
			copy(clientKey[:], b)
		}
		info := &TokenInfo{
			Raw:           raw,
			Alias:         r.Alias,
			ProxyName:     r.ProxyName,
			SessionID:     sid,
			ConfigVersion: r.ConfigVersion,
			Timezone:      r.Timezone,
			Enabled:       r.Enabled,
			Checksum:      checksum.Checksum{First: first, Second: second},
			ClientKey:     clientKey,
		}
		if info.SessionID == uuid.Nil {
			info.SessionID = uuid.New()
		}
		if info.Checksum.IsNil() {
			info.Checksum = checksum.Random()
		}
		if info.ClientKey.IsNil() {
			info.ClientKey = newClientKey()
		}
		m.slots[r.ID] = info
		m.byAlias[r.Alias] = r.ID
		m.byKey[raw.Key()] = r.ID
		present[r.ID] = true
	}
	for id := range m.slots {
		if !present[uint32(id)] {
			m.free = append(m.free, uint32(id))
		}
	}
	return nil
}

// ParseID is a small convenience for admin handlers accepting ids from the
// URL path.
func ParseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("tokenstate: bad id %q: %w", s, err)
	}
	return uint32(n), nil
}
