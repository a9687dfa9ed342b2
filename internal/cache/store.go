// Package cache implements the staleness-aware store the aggregation engine
// publishes merged records through. Entries carry a schema version; a version
// mismatch is a miss regardless of age, which is how schema changes
// invalidate old data without a deploy-time wipe.
package cache

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cometflow/internal/storage"
	"cometflow/logger"
)

// State describes what a Get returned.
type State int

const (
	// Miss means no usable entry exists; the caller must fetch.
	Miss State = iota
	// Fresh means the entry is within maxAge.
	Fresh
	// Stale means the entry is past maxAge but inside the stale window;
	// it is served immediately while a refresh runs in the background.
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Policy holds the aging constants of one cached dataset.
type Policy struct {
	MaxAge        time.Duration
	StaleWindow   time.Duration
	SchemaVersion int
}

type entry[T any] struct {
	payload       T
	storedAt      time.Time
	schemaVersion int
}

// envelope is the disk representation of an entry.
type envelope struct {
	Payload       json.RawMessage `json:"payload"`
	StoredAt      time.Time       `json:"stored_at"`
	SchemaVersion int             `json:"schema_version"`
}

// Store is a single-writer, many-reader cache. Only the aggregation engine
// calls Put for a given key; readers interleave freely because a write
// publishes a whole new entry pointer rather than mutating fields.
type Store[T any] struct {
	policy Policy

	mu      sync.RWMutex
	entries map[string]*entry[T]

	disk       storage.Store // nil disables the mirror
	diskBroken atomic.Bool   // set on first storage failure; logged once

	log *logger.Log
	now func() time.Time
}

// New creates a store with an optional disk mirror. Warm-up is lazy: the
// first Get for a key with no memory entry does one synchronous disk read,
// after which every read for that key is served from memory. Writes go to
// disk asynchronously.
func New[T any](policy Policy, disk storage.Store, log *logger.Log) *Store[T] {
	return &Store[T]{
		policy:  policy,
		entries: make(map[string]*entry[T]),
		disk:    disk,
		log:     log,
		now:     time.Now,
	}
}

// Get returns the cached payload for key and its freshness state. The zero
// payload accompanies a Miss.
func (s *Store[T]) Get(key string) (T, State) {
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()

	if e == nil {
		e = s.loadFromDisk(key)
	}
	if e == nil {
		var zero T
		return zero, Miss
	}

	if e.schemaVersion != s.policy.SchemaVersion {
		var zero T
		return zero, Miss
	}

	age := s.now().Sub(e.storedAt)
	switch {
	case age <= s.policy.MaxAge:
		return e.payload, Fresh
	case age <= s.policy.StaleWindow:
		return e.payload, Stale
	default:
		var zero T
		return zero, Miss
	}
}

// Put publishes a new entry for key. The in-memory map is updated
// synchronously; the disk mirror is written behind the caller's back so a
// slow disk never holds up a response.
func (s *Store[T]) Put(key string, payload T) {
	e := &entry[T]{
		payload:       payload,
		storedAt:      s.now(),
		schemaVersion: s.policy.SchemaVersion,
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	if s.disk != nil && !s.diskBroken.Load() {
		go s.writeDisk(key, e)
	}
}

// loadFromDisk pulls a persisted entry into memory the first time a key is
// requested after startup. Any storage or decode problem is treated as a
// plain miss.
func (s *Store[T]) loadFromDisk(key string) *entry[T] {
	if s.disk == nil || s.diskBroken.Load() {
		return nil
	}

	raw, err := s.disk.Read(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.markDiskBroken(err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.WithComponent("cache").WithError(err).WithFields(logger.Fields{"key": key}).
			Warn("discarding undecodable cache entry")
		return nil
	}
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.WithComponent("cache").WithError(err).WithFields(logger.Fields{"key": key}).
			Warn("discarding undecodable cache payload")
		return nil
	}

	e := &entry[T]{payload: payload, storedAt: env.StoredAt, schemaVersion: env.SchemaVersion}

	s.mu.Lock()
	// A concurrent Put wins over the disk copy.
	if cur, ok := s.entries[key]; ok {
		e = cur
	} else {
		s.entries[key] = e
	}
	s.mu.Unlock()
	return e
}

func (s *Store[T]) writeDisk(key string, e *entry[T]) {
	payload, err := json.Marshal(e.payload)
	if err != nil {
		s.log.WithComponent("cache").WithError(err).WithFields(logger.Fields{"key": key}).
			Warn("failed to encode cache payload")
		return
	}
	raw, err := json.Marshal(envelope{
		Payload:       payload,
		StoredAt:      e.storedAt,
		SchemaVersion: e.schemaVersion,
	})
	if err != nil {
		s.log.WithComponent("cache").WithError(err).WithFields(logger.Fields{"key": key}).
			Warn("failed to encode cache envelope")
		return
	}

	if err := s.disk.Write(key, raw); err != nil {
		s.markDiskBroken(err)
		return
	}
	logger.IncrementCacheWrite(len(raw))
}

// markDiskBroken degrades the store to memory-only for the rest of the
// process lifetime, logging the failure exactly once.
func (s *Store[T]) markDiskBroken(err error) {
	if s.diskBroken.CompareAndSwap(false, true) {
		s.log.WithComponent("cache").WithError(err).
			Error("disk mirror failed, continuing memory-only")
	}
}
