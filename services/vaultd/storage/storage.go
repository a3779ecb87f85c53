package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Laura-bmk/KipuBankV3/native/vault"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("vaultd storage path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS vault_kv (
    key   BLOB PRIMARY KEY,
    value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS vault_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type  TEXT NOT NULL,
    attributes  TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

// Store persists the vault ledger and an append-only event audit trail in
// SQLite. Ledger values travel through the vault.Storage interface as RLP
// encoded blobs.
type Store struct {
	db *sql.DB
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// KVGet loads and RLP-decodes the value stored under key. The boolean reports
// whether the key existed.
func (s *Store) KVGet(key []byte, out interface{}) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("storage not configured")
	}
	var blob []byte
	err := s.db.QueryRow(`SELECT value FROM vault_kv WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query key: %w", err)
	}
	if err := rlp.DecodeBytes(blob, out); err != nil {
		return false, fmt.Errorf("decode value: %w", err)
	}
	return true, nil
}

const upsertKV = `
        INSERT INTO vault_kv(key, value) VALUES(?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `

// KVPut RLP-encodes the value and upserts it under key.
func (s *Store) KVPut(key []byte, value interface{}) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	blob, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if _, err := s.db.Exec(upsertKV, key, blob); err != nil {
		return fmt.Errorf("upsert key: %w", err)
	}
	return nil
}

// KVUpdate runs fn inside a single transaction. Every put issued through the
// writer commits together; an error from fn rolls all of them back.
func (s *Store) KVUpdate(fn func(vault.KVWriter) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	if err := fn(&txWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

type txWriter struct {
	tx *sql.Tx
}

func (w *txWriter) KVPut(key []byte, value interface{}) error {
	blob, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	if _, err := w.tx.Exec(upsertKV, key, blob); err != nil {
		return fmt.Errorf("upsert key: %w", err)
	}
	return nil
}

// RecordEvent appends a vault event to the audit trail. Attributes are stored
// as a deterministic key=value line so rows stay greppable without a JSON
// decoder.
func (s *Store) RecordEvent(ctx context.Context, event vault.Event, recorded time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	if event == nil {
		return fmt.Errorf("event required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO vault_events(event_type, attributes, recorded_at)
        VALUES(?, ?, ?)
    `, event.EventType(), flattenAttributes(event.Attributes()), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// StoredEvent is a row from the audit trail.
type StoredEvent struct {
	ID         int64
	EventType  string
	Attributes string
	RecordedAt time.Time
}

// RecentEvents returns the newest audit rows, capped at limit.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]StoredEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, event_type, attributes, recorded_at
        FROM vault_events
        ORDER BY id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	var events []StoredEvent
	for rows.Next() {
		var event StoredEvent
		if err := rows.Scan(&event.ID, &event.EventType, &event.Attributes, &event.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func flattenAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+attrs[key])
	}
	return strings.Join(parts, " ")
}
