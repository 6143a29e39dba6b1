package tokenstate

import (
	"sync"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursortoken"
)

// Mode is the Log Manager's configured retention mode (§4.3).
type Mode int

const (
	ModeDisabled Mode = iota
	ModeUnlimited
	ModeLimited
)

// cacheEntry is one TokenKey -> Token cache slot, refcounted by the number
// of logs currently referencing it.
type cacheEntry struct {
	tok  cursortoken.Token
	refs int
}

// LogManager holds the capped request-log ring and the TokenKey->Token
// bundle cache described in §4.3's "Log Manager" paragraph.
type LogManager struct {
	mu     sync.RWMutex
	mode   Mode
	limit  int
	nextID uint64
	logs   []gateway.RequestLog // oldest at index 0
	cache  map[cursortoken.TokenKey]*cacheEntry
}

// NewLogManager returns a LogManager in the given mode. limit is ignored
// unless mode is ModeLimited.
func NewLogManager(mode Mode, limit int) *LogManager {
	return &LogManager{
		mode:  mode,
		limit: limit,
		cache: make(map[cursortoken.TokenKey]*cacheEntry),
	}
}

// ModeFromLimit maps the REQUEST_LOGS_LIMIT environment convention of
// spec.md §6 to a Mode: 0 disables logging, >=1_000_000 is unlimited,
// anything else is a limited cap of n.
func ModeFromLimit(n int) (Mode, int) {
	switch {
	case n <= 0:
		return ModeDisabled, 0
	case n >= 1_000_000:
		return ModeUnlimited, 0
	default:
		return ModeLimited, n
	}
}

// PushLogWithToken appends log (with a freshly assigned ID) after inserting
// tok into the bundle cache if absent, enforcing the configured cap by
// evicting from the front and decrementing/removing the evicted log's
// cached bundle. A Disabled manager does nothing and returns 0, false.
func (lm *LogManager) PushLogWithToken(log gateway.RequestLog, tok cursortoken.Token) (uint64, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.mode == ModeDisabled {
		return 0, false
	}

	key := tok.Key()
	if e, ok := lm.cache[key]; ok {
		e.refs++
	} else {
		lm.cache[key] = &cacheEntry{tok: tok, refs: 1}
	}

	lm.nextID++
	log.ID = lm.nextID
	lm.logs = append(lm.logs, log)

	if lm.mode == ModeLimited {
		for len(lm.logs) > lm.limit {
			evicted := lm.logs[0]
			lm.logs = lm.logs[1:]
			lm.decrefLocked(keyFromHex(evicted.TokenKey))
		}
	}
	return log.ID, true
}

func (lm *LogManager) decrefLocked(key cursortoken.TokenKey, ok bool) {
	if !ok {
		return
	}
	e, present := lm.cache[key]
	if !present {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(lm.cache, key)
	}
}

// keyFromHex is a narrow adapter: RequestLog stores the token key as its
// printed form (§2 GLOSSARY), and eviction needs the typed key back to
// address the cache. Parsing failure just means the cache entry leaks
// until the next Restore rebuild, which is an acceptable rare case since a
// log's TokenKey string is always produced by our own String() method.
func keyFromHex(s string) (cursortoken.TokenKey, bool) {
	k, err := cursortoken.ParseTokenKey(s)
	if err != nil {
		return cursortoken.TokenKey{}, false
	}
	return k, true
}

// UpdateLog locates the log with the given ID, scanning from the newest end
// (the usual case: the log being finalized is recent), and applies f to it
// in place. Reports whether a matching log was found.
func (lm *LogManager) UpdateLog(id uint64, f func(*gateway.RequestLog)) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for i := len(lm.logs) - 1; i >= 0; i-- {
		if lm.logs[i].ID == id {
			f(&lm.logs[i])
			return true
		}
	}
	return false
}

// CachedBundle returns the interned Token cached under key, used by the
// admission layer's "direct key" auth class (§4.5 step 3).
func (lm *LogManager) CachedBundle(key cursortoken.TokenKey) (cursortoken.Token, bool) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	e, ok := lm.cache[key]
	if !ok {
		return cursortoken.Token{}, false
	}
	return e.tok, true
}

// List returns up to limit logs starting at offset from the newest end
// (offset 0 is the most recent log).
func (lm *LogManager) List(offset, limit int) []gateway.RequestLog {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	n := len(lm.logs)
	if offset >= n {
		return nil
	}
	end := n - offset
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]gateway.RequestLog, end-start)
	for i := range out {
		out[i] = lm.logs[end-1-i]
	}
	return out
}

// Len reports the number of logs currently retained.
func (lm *LogManager) Len() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.logs)
}

// Snapshot returns every retained log, oldest first, for persistence.
func (lm *LogManager) Snapshot() []gateway.RequestLog {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	out := make([]gateway.RequestLog, len(lm.logs))
	copy(out, lm.logs)
	return out
}

// RebuildFromPersisted replaces the log ring with logs (already in
// persisted, oldest-first order) and rebuilds the bundle refcount cache
// from scratch, dropping any pool entries not referenced by a surviving
// log (§4.3: "on startup the manager rebuilds refcounts from the
// persisted logs and drops bundle entries not referenced by any log").
func (lm *LogManager) RebuildFromPersisted(logs []gateway.RequestLog, pool *cursortoken.Pool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs = logs
	lm.cache = make(map[cursortoken.TokenKey]*cacheEntry)
	lm.nextID = 0
	for _, l := range logs {
		if l.ID > lm.nextID {
			lm.nextID = l.ID
		}
		key, ok := keyFromHex(l.TokenKey)
		if !ok {
			continue
		}
		if e, ok := lm.cache[key]; ok {
			e.refs++
			continue
		}
		tok, ok := pool.Lookup(key)
		if !ok {
			continue
		}
		lm.cache[key] = &cacheEntry{tok: tok, refs: 1}
	}
}
