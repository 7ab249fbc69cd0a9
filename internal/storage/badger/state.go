// Package badger keeps the short-lived state shared between units of work:
// the import flags, the materialized history changelog and the active-id set.
// Every entry expires after the configured TTL.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"listing_syncer/internal/domain"
)

const (
	keyPrefix      = "listing_syncer:"
	importStateKey = "import_state"
)

type StateStore struct {
	db  *badger.DB
	ttl time.Duration
}

func NewStateStore(db *badger.DB, ttl time.Duration) *StateStore {
	return &StateStore{db: db, ttl: ttl}
}

// Open opens a badger database at dir. An empty dir opens an in-memory database.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// LoadState returns the import flags, or a zero state when none are stored.
func (s *StateStore) LoadState(ctx context.Context) (*domain.ImportState, error) {
	var st domain.ImportState
	if _, err := s.Load(ctx, importStateKey, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateStore) SaveState(ctx context.Context, st *domain.ImportState) error {
	return s.Store(ctx, importStateKey, st)
}

func (s *StateStore) Load(_ context.Context, key string, dst any) (bool, error) {
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	return found, nil
}

func (s *StateStore) Store(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) Delete(_ context.Context, keys ...string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(keyPrefix + key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}
