package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store provides namespaced key-value storage contexts over SQLite.
//
// Each plugin gets its own Context, plus one for the orchestrator, so no
// two components ever write the same persisted key. Values are stored as
// JSON blobs and read back with json.Unmarshal.
//
// All public methods are thread-safe.
type Store struct {
	db         *database.DB
	backupPath string
	logger     Logger

	// contexts caches handed-out contexts so repeated calls for the same
	// namespace share one value.
	contexts   map[string]*Context
	contextsMu sync.Mutex
}

// Options configures a Store.
type Options struct {
	// BackupPath is where Backup() writes the sidecar snapshot.
	BackupPath string

	// Logger is an optional structured logger.
	Logger Logger
}

// NewStore creates a Store over an open database and verifies its integrity.
//
// On integrity failure it returns ErrCorrupted (wrapped); the caller decides
// whether to restore from backup and retry, per configuration.
func NewStore(ctx context.Context, db *database.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	s := &Store{
		db:         db,
		backupPath: opts.BackupPath,
		logger:     noopLogger{},
		contexts:   make(map[string]*Context),
	}
	if opts.Logger != nil {
		s.logger = opts.Logger
	}

	if err := db.Verify(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	return s, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Context returns the key-value context for the given namespace.
// Contexts are cheap handles; the same namespace always yields the same value.
func (s *Store) Context(namespace string) (*Context, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}

	s.contextsMu.Lock()
	defer s.contextsMu.Unlock()

	if c, ok := s.contexts[namespace]; ok {
		return c, nil
	}
	c := &Context{store: s, namespace: namespace}
	s.contexts[namespace] = c
	return c, nil
}

// Backup writes a consistent snapshot of the store to the configured
// backup path. No-op when no backup path is set.
func (s *Store) Backup(ctx context.Context) error {
	if s.backupPath == "" {
		return nil
	}
	if err := s.db.Backup(ctx, s.backupPath); err != nil {
		return fmt.Errorf("backing up store: %w", err)
	}
	s.logger.Info("storage backup written", "path", s.backupPath)
	return nil
}

// Flush forces a WAL checkpoint so all committed writes reach the main
// database file. Called during cleanup before process exit.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("flushing store: %w", err)
	}
	return nil
}

// Context is a namespaced key-value view over the Store.
//
// Keys are read once at initialize and written only on explicit mutation;
// transient runtime state never goes through a Context.
type Context struct {
	store     *Store
	namespace string
}

// Namespace returns the context's namespace.
func (c *Context) Namespace() string {
	return c.namespace
}

// Get reads the value for key into v (JSON unmarshal).
// Returns ErrKeyNotFound if the key does not exist.
func (c *Context) Get(ctx context.Context, key string, v any) error {
	var raw string
	err := c.store.db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE namespace = ? AND key = ?",
		c.namespace, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", c.namespace, key, err)
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", c.namespace, key, err)
	}
	return nil
}

// Set writes the value for key (JSON marshal, upsert).
func (c *Context) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", c.namespace, key, err)
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		c.namespace, key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", c.namespace, key, err)
	}

	c.store.logger.Debug("storage key written", "namespace", c.namespace, "key", key)
	return nil
}

// Remove deletes the key. Removing a missing key is not an error.
func (c *Context) Remove(ctx context.Context, key string) error {
	_, err := c.store.db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE namespace = ? AND key = ?",
		c.namespace, key,
	)
	if err != nil {
		return fmt.Errorf("removing %s/%s: %w", c.namespace, key, err)
	}
	return nil
}

// Keys returns all keys in the context, sorted.
func (c *Context) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.store.db.QueryContext(ctx,
		"SELECT key FROM kv_store WHERE namespace = ? ORDER BY key",
		c.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("listing keys in %s: %w", c.namespace, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return keys, nil
}

// Clear removes every key in the context.
func (c *Context) Clear(ctx context.Context) error {
	_, err := c.store.db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE namespace = ?",
		c.namespace,
	)
	if err != nil {
		return fmt.Errorf("clearing %s: %w", c.namespace, err)
	}
	return nil
}
