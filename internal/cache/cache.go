package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"archdrift/internal/ir"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix versions the stored encoding; bump it when ir types change shape.
const keyPrefix = "parse/v1/"

// Config configures the parse cache.
type Config struct {
	// Path is the badger directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps the cache in memory only, mostly for tests.
	InMemory bool
	// Namespace is mixed into every key, e.g. a Go module path that changes
	// how the same file is named.
	Namespace string
	// TTL expires entries; zero keeps them until overwritten.
	TTL time.Duration
	// Logger receives badger's own log lines. Nil silences badger.
	Logger *slog.Logger
}

// ParseCache stores parse results keyed by language, path and content hash.
// Safe for concurrent use.
type ParseCache struct {
	db        *badger.DB
	namespace string
	ttl       time.Duration
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the cache.
func Open(cfg Config) (*ParseCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required unless in memory")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open parse cache: %w", err)
	}
	return &ParseCache{db: db, namespace: cfg.Namespace, ttl: cfg.TTL}, nil
}

// Key derives the cache key of one file.
func (c *ParseCache) Key(language, path string, content []byte) []byte {
	h := sha256.New()
	h.Write([]byte(c.namespace))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(content)
	return []byte(keyPrefix + hex.EncodeToString(h.Sum(nil)))
}

// Get returns the cached parse result, if any. Undecodable entries count as misses.
func (c *ParseCache) Get(language, path string, content []byte) (*ir.ParsedFile, bool) {
	var parsed ir.ParsedFile
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Key(language, path, content))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &parsed)
		})
	})
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

// Put stores a parse result.
func (c *ParseCache) Put(language, path string, content []byte, parsed *ir.ParsedFile) error {
	if parsed == nil {
		return nil
	}
	val, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	key := c.Key(language, path, content)
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Len counts live entries.
func (c *ParseCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Clear drops every cached entry.
func (c *ParseCache) Clear() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

// Close runs a value log GC pass and closes the database.
func (c *ParseCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		slog.Debug("parse cache gc skipped", slog.String("error", err.Error()))
	}
	return c.db.Close()
}
