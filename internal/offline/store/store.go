// Package store provides the durable key-value and file storage that every
// other offline component writes through.
//
// Values live in a single SQLite database opened in embedded mode with WAL
// for concurrent access. Large documents (multi-day route plan bundles and
// similar) live as individual JSON files under <dataDir>/offline/.
//
// Key layout used by the rest of the system:
//   - offline_sync_queue       serialized list of queued mutations
//   - offline_data_<key>       serialized cache entry for a named dataset
//   - offline_tracking_times   serialized list of staged tracking sessions
//   - offline/<name>.json      large documents in the file namespace
//
// Read failures caused by unparseable stored data are reported as "absent"
// rather than as errors; a corrupted value must never wedge the client.
// Write failures propagate to the caller.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection and the offline file namespace.
type Store struct {
	conn    *sql.DB
	path    string
	fileDir string
}

// Open creates or opens the durable store rooted at dataDir.
//
// The database lives at <dataDir>/offline.db and files at <dataDir>/offline/.
// The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(".schegl")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fileDir := filepath.Join(dataDir, "offline")
	if err := os.MkdirAll(fileDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create file namespace: %w", err)
	}

	path := filepath.Join(dataDir, "offline.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn:    conn,
		path:    path,
		fileDir: fileDir,
	}

	// WAL mode for concurrent readers during writes
	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := st.initSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// Close closes the database connection after checkpointing the WAL.
func (st *Store) Close() error {
	if st.conn == nil {
		return nil
	}

	if _, err := st.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := st.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	st.conn = nil
	return nil
}

// Path returns the database file path.
func (st *Store) Path() string {
	return st.path
}

// FileDir returns the directory backing the offline file namespace.
func (st *Store) FileDir() string {
	return st.fileDir
}

func (st *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key       TEXT PRIMARY KEY,
		value     BLOB NOT NULL,
		stored_at TEXT NOT NULL
	);
	`
	if _, err := st.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Set stores value under key, overwriting any previous value.
// The stored_at timestamp is set to the current time.
func (st *Store) Set(key string, value []byte) error {
	return st.SetContext(context.Background(), key, value)
}

// SetContext stores a value with context support.
func (st *Store) SetContext(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO kv (key, value, stored_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		stored_at = excluded.stored_at
	`
	_, err := st.conn.ExecContext(ctx, query, key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Get retrieves the value stored under key along with its write timestamp.
// A missing key returns ok=false with a nil error. An unparseable stored_at
// is tolerated: the value is still returned with a zero timestamp.
func (st *Store) Get(key string) (value []byte, storedAt time.Time, ok bool, err error) {
	return st.GetContext(context.Background(), key)
}

// GetContext retrieves a value with context support.
func (st *Store) GetContext(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var storedAtStr string

	row := st.conn.QueryRowContext(ctx, "SELECT value, stored_at FROM kv WHERE key = ?", key)
	if err := row.Scan(&value, &storedAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	storedAt, err := time.Parse(time.RFC3339, storedAtStr)
	if err != nil {
		storedAt = time.Time{}
	}

	return value, storedAt, true, nil
}

// Delete removes a key. Deleting an absent key is a no-op.
func (st *Store) Delete(key string) error {
	return st.DeleteContext(context.Background(), key)
}

// DeleteContext removes a key with context support.
func (st *Store) DeleteContext(ctx context.Context, key string) error {
	if _, err := st.conn.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys returns all keys with the given prefix in lexical order.
func (st *Store) Keys(prefix string) ([]string, error) {
	return st.KeysContext(context.Background(), prefix)
}

// KeysContext returns matching keys with context support.
func (st *Store) KeysContext(ctx context.Context, prefix string) ([]string, error) {
	rows, err := st.conn.QueryContext(ctx,
		"SELECT key FROM kv WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}

	return keys, nil
}

// SaveFile writes a large document into the offline file namespace as
// offline/<name>.json. The write goes through a temp file and rename so a
// crash mid-write never leaves a truncated document behind.
func (st *Store) SaveFile(name string, data []byte) error {
	path := st.filePath(name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write offline file %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize offline file %s: %w", name, err)
	}

	return nil
}

// LoadFile reads a document from the offline file namespace.
// A missing file returns ok=false with a nil error.
func (st *Store) LoadFile(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(st.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read offline file %s: %w", name, err)
	}
	return data, true, nil
}

// FileExists reports whether a document exists in the offline file
// namespace. It never returns an error.
func (st *Store) FileExists(name string) bool {
	_, err := os.Stat(st.filePath(name))
	return err == nil
}

// RemoveFile deletes a document from the offline file namespace.
// Removing an absent file is a no-op.
func (st *Store) RemoveFile(name string) error {
	if err := os.Remove(st.filePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove offline file %s: %w", name, err)
	}
	return nil
}

// ListFiles returns the names of all documents in the offline file namespace.
func (st *Store) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(st.fileDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read file namespace: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" {
			continue
		}
		names = append(names, entry.Name()[:len(entry.Name())-len(ext)])
	}
	return names, nil
}

func (st *Store) filePath(name string) string {
	return filepath.Join(st.fileDir, name+".json")
}
