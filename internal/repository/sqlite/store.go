// Package sqlite persists small key/value session state (the refresh
// credential and the saved dashboard settings) in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_state (
	state_key  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Store implements domain.StateStore on SQLite
type Store struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// Open opens (creating if needed) the state database at path.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %s: %w", path, err)
	}

	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	slog.Debug("State store ready", "path", path)
	return &Store{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Get returns the value for key and whether it exists
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := s.psql.Select("value").From("kv_state").Where(sq.Eq{"state_key": key}).ToSql()
	if err != nil {
		return "", false, fmt.Errorf("sqlite: failed to build query: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: failed to read %q: %w", key, err)
	}
	return value, true, nil
}

// Set inserts or replaces the value for key
func (s *Store) Set(ctx context.Context, key, value string) error {
	query, args, err := s.psql.Insert("kv_state").
		Columns("state_key", "value", "updated_at").
		Values(key, value, time.Now().UTC()).
		Suffix("ON CONFLICT(state_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: failed to build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	query, args, err := s.psql.Delete("kv_state").Where(sq.Eq{"state_key": key}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: failed to build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: failed to delete %q: %w", key, err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
