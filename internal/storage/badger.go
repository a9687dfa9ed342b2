// Package storage provides the on-disk key-value mirror behind the cache.
package storage

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"cometflow/logger"
)

// ErrNotFound reports that a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the thin byte-level contract the cache persists through.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Close() error
}

// BadgerStore implements Store on an embedded BadgerDB. A single process
// owns the directory; Badger's own locking enforces that.
type BadgerStore struct {
	db  *badger.DB
	log *logger.Log
}

// OpenBadger opens (or creates) the store at dir. An empty dir opens an
// in-memory database, which tests and the memory-only degraded mode use.
func OpenBadger(dir string, log *logger.Log) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's default logger is chatty at INFO; route nothing through it
	// and report through our own logger instead.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	log.WithComponent("storage").WithFields(logger.Fields{
		"dir":       dir,
		"in_memory": dir == "",
	}).Info("badger store opened")

	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) Read(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", key, err)
	}
	return value, nil
}

func (s *BadgerStore) Write(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
