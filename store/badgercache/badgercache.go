// Package badgercache implements nova.Cache on BadgerDB v4, using badger's
// native entry TTLs for expiry. Suited to single-node deployments that want
// the response cache to survive restarts.
package badgercache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	nova "github.com/novalabs/nova"
)

// Options configures a Cache.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	// Useful for testing with a real badger engine.
	InMemory bool

	// Logger receives badger's own diagnostics at warn level and above.
	// If nil, badger output is discarded below warn.
	Logger *slog.Logger
}

// Cache is a content-addressed response cache backed by BadgerDB.
type Cache struct {
	db *badger.DB
}

var _ nova.Cache = (*Cache)(nil)

// New opens (or creates) the cache at opts.Dir.
func New(opts Options) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgercache: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{logger: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns the cached text for key. A missing or expired entry is a miss,
// not an error.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(raw)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key with the given TTL. Badger expires the entry
// server-side; a zero TTL falls back to the engine default.
func (c *Cache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = nova.DefaultCacheTTL
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Close releases the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// slogAdapter bridges badger's logger interface onto slog, dropping info
// and debug chatter.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(f string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Error("badger", "msg", fmt.Sprintf(f, v...))
	}
}

func (a slogAdapter) Warningf(f string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Warn("badger", "msg", fmt.Sprintf(f, v...))
	}
}

func (slogAdapter) Infof(string, ...interface{})  {}
func (slogAdapter) Debugf(string, ...interface{}) {}
