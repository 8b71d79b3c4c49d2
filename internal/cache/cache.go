// Package cache provides the bounded in-memory cache shared by the API client
// and the page resolver, plus an optional on-disk snapshot of its contents.
package cache

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries a cache holds when none is configured.
const DefaultCapacity = 1024

// Cache maps request URLs to previously retrieved bodies.
type Cache interface {
	// Get returns the value stored under key. Absent and expired keys miss.
	Get(key string) ([]byte, bool)

	// Put stores value under key for ttl. A non-positive ttl never expires.
	Put(key string, value []byte, ttl time.Duration)

	// Clear removes every entry.
	Clear()

	// Len returns the number of stored entries, including expired ones not yet reclaimed.
	Len() int
}

// Entry is a single cached value with its absolute expiry.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"` // zero means no expiry

	// private entries are served from memory but never snapshotted
	private bool
}

// expired reports whether the entry is stale at now. An entry expiring exactly
// at now is stale.
func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// Memory is a capacity-bounded LRU cache with per-entry expiry. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time
	logger   *slog.Logger
}

var _ Cache = (*Memory)(nil)

// NewMemory creates a cache holding at most capacity entries. A capacity below
// one is raised to one.
func NewMemory(capacity int, logger *slog.Logger, opts ...Option) *Memory {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := &Memory{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value for key if present and not expired. A hit marks the
// entry as most recently used; an expired entry is removed.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*Entry)
	if ent.expired(m.now()) {
		m.removeElement(elem)
		m.logger.Debug("Cache entry expired", "key", key)
		return nil, false
	}

	m.order.MoveToFront(elem)
	return ent.Value, true
}

// Put stores value under key, replacing any previous value. When a new key
// would exceed capacity the least recently used entry is evicted.
func (m *Memory) Put(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.put(&Entry{Key: key, Value: value, ExpiresAt: expiresAt})
}

// PutPrivate stores value like Put but keeps it out of Snapshot. It is used
// for responses fetched with credentials that must not reach disk.
func (m *Memory) PutPrivate(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.put(&Entry{Key: key, Value: value, ExpiresAt: expiresAt, private: true})
}

func (m *Memory) put(ent *Entry) {
	if elem, ok := m.entries[ent.Key]; ok {
		elem.Value = ent
		m.order.MoveToFront(elem)
		return
	}

	for m.order.Len() >= m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		m.logger.Debug("Cache entry evicted", "key", oldest.Value.(*Entry).Key)
		m.removeElement(oldest)
	}

	m.entries[ent.Key] = m.order.PushFront(ent)
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Snapshot returns copies of the live public entries, least recently used first.
func (m *Memory) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entries := make([]Entry, 0, m.order.Len())
	for elem := m.order.Back(); elem != nil; elem = elem.Prev() {
		ent := elem.Value.(*Entry)
		if ent.private || ent.expired(now) {
			continue
		}
		entries = append(entries, *ent)
	}
	return entries
}

// Restore inserts entries in order, skipping expired ones, and returns how
// many were kept. Later entries are treated as more recently used.
func (m *Memory) Restore(entries []Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	restored := 0
	for i := range entries {
		ent := entries[i]
		if ent.Key == "" || ent.expired(now) {
			continue
		}
		m.put(&ent)
		restored++
	}
	return restored
}

func (m *Memory) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.entries, elem.Value.(*Entry).Key)
}
