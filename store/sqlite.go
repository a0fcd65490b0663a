package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteStore keeps items in a single SQLite table. The id column is the item
// id; every other field lives in the JSON data column.
//
// Tables:
//
//	items(id INTEGER PRIMARY KEY AUTOINCREMENT, data TEXT)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
	settings
}

func NewSqliteStore(dbPath string, opts ...Option) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db, settings: newSettings(opts)}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// encodeRow serializes everything but the id.
func encodeRow(it Item) (string, error) {
	doc := make(map[string]any, len(it))
	for k, v := range it {
		if k != "id" {
			doc[k] = v
		}
	}
	b, err := json.Marshal(doc)
	return string(b), err
}

func decodeRow(id int64, raw string) (Item, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("store: decode item %d: %w", id, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	doc["id"] = id
	return normalize(doc), nil
}

func (s *SqliteStore) Create(ctx context.Context, data map[string]any) (Item, error) {
	data, err := s.cast(data, true)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := newItem(nil, data, s.clock.Now())
	if err != nil {
		return nil, err
	}
	raw, err := encodeRow(it)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO items (data) VALUES (?)", raw)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	it["id"] = id
	return it, nil
}

func (s *SqliteStore) List(ctx context.Context) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT id, data FROM items ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Item{}
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		it, err := decodeRow(id, raw)
		if err != nil {
			s.logger.Warn("skipping unreadable item", "id", id, "error", err)
			continue
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (s *SqliteStore) FindByID(ctx context.Context, id string) (Item, error) {
	n, ok := integralID(id)
	if !ok {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, s.db, n)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SqliteStore) get(ctx context.Context, q queryRower, id int64) (Item, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT data FROM items WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRow(id, raw)
}

func (s *SqliteStore) Update(ctx context.Context, id string, data map[string]any) (Item, error) {
	data, err := s.cast(data, false)
	if err != nil {
		return nil, err
	}
	n, ok := integralID(id)
	if !ok {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.get(ctx, tx, n)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	it, err := mergeItem(existing, data, s.clock.After(existing.LastUpdate()))
	if err != nil {
		return nil, err
	}
	raw, err := encodeRow(it)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE items SET data = ? WHERE id = ?", raw, n); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *SqliteStore) Delete(ctx context.Context, id string) error {
	n, ok := integralID(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", n)
	return err
}
