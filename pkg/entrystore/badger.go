package entrystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/soundprediction/recall/pkg/types"
)

const entryPrefix = "entry/"

// BadgerStore persists entries in an embedded Badger database. Values are
// JSON-encoded ContextEntry records keyed by id.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path. An empty path
// opens an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func entryKey(id string) []byte {
	return []byte(entryPrefix + id)
}

func (b *BadgerStore) Put(ctx context.Context, entry *types.ContextEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	stored := copyEntry(entry)
	stored.SetTags(stored.Tags)
	now := time.Now().UTC()

	existing, err := b.Get(ctx, entry.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		stored.CreatedAt = existing.CreatedAt
		stored.AccessCount = existing.AccessCount
		stored.LastAccessedAt = existing.LastAccessedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", entry.ID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write entry %s: %w", entry.ID, err)
	}
	return nil
}

func (b *BadgerStore) Get(ctx context.Context, id string) (*types.ContextEntry, error) {
	var entry *types.ContextEntry
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			decoded := &types.ContextEntry{}
			if err := json.Unmarshal(raw, decoded); err != nil {
				return err
			}
			entry = decoded
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", id, err)
	}
	return entry, nil
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) List(ctx context.Context, q Query) ([]*types.ContextEntry, error) {
	now := time.Now().UTC()
	var out []*types.ContextEntry
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				entry := &types.ContextEntry{}
				if err := json.Unmarshal(raw, entry); err != nil {
					return err
				}
				if matches(entry, q, now) {
					out = append(out, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	sortedNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (b *BadgerStore) RecordAccess(ctx context.Context, id string) error {
	entry, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	entry.AccessCount++
	entry.LastAccessedAt = time.Now().UTC()

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", id, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(id), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to record access for %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
