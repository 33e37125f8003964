// Package settings persists operator preferences, including the webhook
// credentials, in a local SQLite file.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clubdesk/internal/platform/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	sealed INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

// Entry is one preference. Secret entries are sealed at rest when the store has a sealer.
type Entry struct {
	Key    string
	Value  string
	Secret bool
}

type preferenceRow struct {
	Key    string `db:"key"`
	Value  string `db:"value"`
	Sealed bool   `db:"sealed"`
}

type Store struct {
	db     *sqlx.DB
	sealer *Sealer
}

func Open(cfg config.PreferencesConfig) (*Store, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", cfg.Path))
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between SetAll calls.
	db.SetMaxOpenConns(1)

	var sealer *Sealer
	if cfg.MasterKey != "" {
		sealer, err = NewSealer(cfg.MasterKey)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	s, err := NewStore(db, sealer)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStore(db *sqlx.DB, sealer *Sealer) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create preferences table: %w", err)
	}
	return &Store{db: db, sealer: sealer}, nil
}

func (s *Store) Sealed() bool {
	return s.sealer != nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var row preferenceRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value, sealed FROM preferences WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	value, err := s.unseal(row)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetAll returns every stored preference, unsealed.
func (s *Store) GetAll(ctx context.Context) (map[string]string, error) {
	var rows []preferenceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value, sealed FROM preferences`); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		value, err := s.unseal(row)
		if err != nil {
			return nil, err
		}
		out[row.Key] = value
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, e Entry) error {
	return s.SetAll(ctx, []Entry{e})
}

// SetAll writes every entry in one transaction: either all persist or none do.
func (s *Store) SetAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, e := range entries {
		value, sealed := e.Value, false
		if e.Secret && s.sealer != nil && e.Value != "" {
			if value, err = s.sealer.Seal(e.Value); err != nil {
				return fmt.Errorf("seal %q: %w", e.Key, err)
			}
			sealed = true
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (key, value, sealed, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, sealed = excluded.sealed, updated_at = excluded.updated_at
		`, e.Key, value, sealed, now)
		if err != nil {
			return fmt.Errorf("write %q: %w", e.Key, err)
		}
	}

	return tx.Commit()
}

func (s *Store) unseal(row preferenceRow) (string, error) {
	if !row.Sealed {
		return row.Value, nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("preference %q: value is sealed but no master key is configured", row.Key)
	}
	value, err := s.sealer.Open(row.Value)
	if err != nil {
		return "", fmt.Errorf("preference %q: %w", row.Key, err)
	}
	return value, nil
}
