package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cannonclash/client/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

const (
	keyRoomCode  = "room_code"
	keyPlayerID  = "player_id"
	keyServerURL = "server_url"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore implements store.Store on a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store at dbPath, applying the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Identity returns the held session identity, zero when absent or partial.
func (s *SQLiteStore) Identity(ctx context.Context) (store.Identity, error) {
	room, err := s.get(ctx, keyRoomCode)
	if err != nil {
		return store.Identity{}, err
	}
	player, err := s.get(ctx, keyPlayerID)
	if err != nil {
		return store.Identity{}, err
	}
	id := store.Identity{RoomCode: room, PlayerID: player}
	if !id.Present() {
		// A half-written identity is treated as absent rather than resumed.
		return store.Identity{}, nil
	}
	return id, nil
}

// SaveIdentity persists both identity keys in one transaction.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, id store.Identity) error {
	if !id.Present() {
		return store.ErrPartialIdentity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{keyRoomCode: id.RoomCode, keyPlayerID: id.PlayerID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// ClearIdentity removes both identity keys in one transaction.
func (s *SQLiteStore) ClearIdentity(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE key IN (?, ?)`, keyRoomCode, keyPlayerID)
	if err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	return nil
}

// Endpoint returns the preferred server URL, empty when unset.
func (s *SQLiteStore) Endpoint(ctx context.Context) (string, error) {
	return s.get(ctx, keyServerURL)
}

// SaveEndpoint stores the preferred server URL.
func (s *SQLiteStore) SaveEndpoint(ctx context.Context, url string) error {
	if url == "" {
		return s.ClearEndpoint(ctx)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, keyServerURL, url)
	if err != nil {
		return fmt.Errorf("save endpoint: %w", err)
	}
	return nil
}

// ClearEndpoint drops the preferred server URL.
func (s *SQLiteStore) ClearEndpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, keyServerURL)
	if err != nil {
		return fmt.Errorf("clear endpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}
