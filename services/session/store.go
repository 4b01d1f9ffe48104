package session

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// TokenKey derives the store key for a bearer token so raw tokens are never
// held as map keys
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// storeEntry represents a single session with its idle clock
type storeEntry struct {
	key      string
	session  *Session
	lastSeen time.Time
	element  *list.Element // For LRU tracking
}

// isExpired checks if the entry has been idle longer than ttl
func (e *storeEntry) isExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.lastSeen) > ttl
}

// Store is an in-memory LRU of sessions with idle expiry.
// Thread-safe implementation using sync.Mutex
type Store struct {
	mu        sync.Mutex
	entries   map[string]*storeEntry
	lruList   *list.List
	maxSize   int
	idleTTL   time.Duration
	now       func() time.Time
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewStore creates a Store holding at most maxSize sessions
func NewStore(maxSize int, idleTTL time.Duration) *Store {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Store{
		entries: make(map[string]*storeEntry),
		lruList: list.New(),
		maxSize: maxSize,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Get returns the session for key and refreshes its idle clock.
// Idle sessions are removed and reported as missing.
func (st *Store) Get(key string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	entry, exists := st.entries[key]
	if !exists || (st.idleTTL > 0 && entry.isExpired(now, st.idleTTL)) {
		st.misses++
		if exists {
			st.removeEntry(key)
		}
		return nil, false
	}

	entry.lastSeen = now
	st.lruList.MoveToFront(entry.element)
	st.hits++

	return entry.session, true
}

// Put stores s under key, replacing any previous session
func (st *Store) Put(key string, s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if entry, exists := st.entries[key]; exists {
		entry.session = s
		entry.lastSeen = st.now()
		st.lruList.MoveToFront(entry.element)
		return
	}
	st.insert(key, s)
}

// Add stores s under key unless a live session already exists, in which
// case the existing one is returned
func (st *Store) Add(key string, s *Session) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if entry, exists := st.entries[key]; exists {
		if st.idleTTL <= 0 || !entry.isExpired(now, st.idleTTL) {
			entry.lastSeen = now
			st.lruList.MoveToFront(entry.element)
			return entry.session
		}
		st.removeEntry(key)
	}
	st.insert(key, s)
	return s
}

// Remove deletes the session stored under key and returns it
func (st *Store) Remove(key string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entry, exists := st.entries[key]
	if !exists {
		return nil, false
	}
	st.removeEntry(key)
	return entry.session, true
}

// InvalidateUser removes every session belonging to userID
func (st *Store) InvalidateUser(userID int64) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for key, entry := range st.entries {
		if entry.session.UserID() == userID {
			st.removeEntry(key)
			removed++
		}
	}
	return removed
}

// InvalidateAll removes every session
func (st *Store) InvalidateAll() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.entries)
	st.entries = make(map[string]*storeEntry)
	st.lruList.Init()
	return n
}

// Len returns the number of stored sessions
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// StoreStats represents session store statistics
type StoreStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats returns store statistics
func (st *Store) Stats() StoreStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	var rate float64
	if total := st.hits + st.misses; total > 0 {
		rate = float64(st.hits) / float64(total)
	}
	return StoreStats{
		Size:      st.lruList.Len(),
		MaxSize:   st.maxSize,
		Hits:      st.hits,
		Misses:    st.misses,
		Evictions: st.evictions,
		HitRate:   rate,
	}
}

// CleanupExpired removes all idle sessions
func (st *Store) CleanupExpired() int {
	if st.idleTTL <= 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	expiredKeys := make([]string, 0)
	for key, entry := range st.entries {
		if entry.isExpired(now, st.idleTTL) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	for _, key := range expiredKeys {
		st.removeEntry(key)
	}
	return len(expiredKeys)
}

// RunCleanup periodically removes idle sessions. It blocks until stopCh
// closes, so callers run it on its own goroutine.
func (st *Store) RunCleanup(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}

// insert adds a new entry, evicting the least recently used one when full
// (must be called with lock held)
func (st *Store) insert(key string, s *Session) {
	if st.lruList.Len() >= st.maxSize {
		st.evictLRU()
	}
	entry := &storeEntry{
		key:      key,
		session:  s,
		lastSeen: st.now(),
	}
	entry.element = st.lruList.PushFront(key)
	st.entries[key] = entry
}

// removeEntry must be called with lock held
func (st *Store) removeEntry(key string) {
	if entry, exists := st.entries[key]; exists {
		st.lruList.Remove(entry.element)
		delete(st.entries, key)
	}
}

// evictLRU must be called with lock held
func (st *Store) evictLRU() {
	back := st.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	st.lruList.Remove(back)
	delete(st.entries, key)
	st.evictions++
}
