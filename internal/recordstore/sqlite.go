package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"speedy/internal/splits"
)

// SQLiteStore implements splits.RecordStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; the merge engine is the only one anyway.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS games (
			game TEXT PRIMARY KEY,
			sections TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			game TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (game, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			game TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			run_id TEXT,
			payload TEXT NOT NULL,
			PRIMARY KEY (game, started_at)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadSequence implements splits.RecordStore.LoadSequence.
func (s *SQLiteStore) LoadSequence(ctx context.Context, game string) (splits.SectionSequence, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT sections FROM games WHERE game = ?`, game).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", splits.ErrUnknownGame, game)
	}
	if err != nil {
		return nil, err
	}
	var seq splits.SectionSequence
	if err := json.Unmarshal([]byte(raw), &seq); err != nil {
		return nil, fmt.Errorf("%w: sections of %s: %v", splits.ErrMalformedRecord, game, err)
	}
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("sections of %s: %w", game, err)
	}
	return seq, nil
}

// SaveSequence implements splits.RecordStore.SaveSequence.
func (s *SQLiteStore) SaveSequence(ctx context.Context, game string, seq splits.SectionSequence) error {
	if err := seq.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (game, sections) VALUES (?, ?)
		 ON CONFLICT(game) DO UPDATE SET sections = excluded.sections`,
		game, string(raw))
	return err
}

// Games implements splits.RecordStore.Games.
func (s *SQLiteStore) Games(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game FROM games ORDER BY game`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// Load implements splits.RecordStore.Load.
func (s *SQLiteStore) Load(ctx context.Context, game string, seq splits.SectionSequence) (*splits.Record, *splits.Record, error) {
	pb, pbErr := s.loadRecord(ctx, game, splits.KindPB)
	if pbErr == nil {
		pb, pbErr = splits.CheckLoaded(splits.KindPB, pb, seq)
	}
	sob, sobErr := s.loadRecord(ctx, game, splits.KindSumOfBest)
	if sobErr == nil {
		sob, sobErr = splits.CheckLoaded(splits.KindSumOfBest, sob, seq)
	}
	return pb, sob, errors.Join(pbErr, sobErr)
}

func (s *SQLiteStore) loadRecord(ctx context.Context, game, kind string) (*splits.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE game = ? AND kind = ?`, game, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	return decodeRecord(kind, payload)
}

// PersistHistory implements splits.RecordStore.PersistHistory.
func (s *SQLiteStore) PersistHistory(ctx context.Context, run splits.Record) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO history (game, started_at, run_id, payload) VALUES (?, ?, ?, ?)`,
		run.Game, run.StartedAt.UnixNano(), run.ID, string(payload))
	return err
}

// PersistPB implements splits.RecordStore.PersistPB.
func (s *SQLiteStore) PersistPB(ctx context.Context, run splits.Record) error {
	return s.putRecord(ctx, splits.KindPB, run)
}

// PersistSumOfBest implements splits.RecordStore.PersistSumOfBest.
func (s *SQLiteStore) PersistSumOfBest(ctx context.Context, sob splits.Record) error {
	return s.putRecord(ctx, splits.KindSumOfBest, sob)
}

func (s *SQLiteStore) putRecord(ctx context.Context, kind string, rec splits.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (game, kind, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(game, kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		rec.Game, kind, string(payload), time.Now().UTC())
	return err
}

// History implements splits.RecordStore.History.
func (s *SQLiteStore) History(ctx context.Context, game string) ([]splits.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM history WHERE game = ? ORDER BY started_at DESC`, game)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		runs []splits.Record
		errs []error
	)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(splits.KindHistory, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		runs = append(runs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, errors.Join(errs...)
}

func decodeRecord(kind, payload string) (*splits.Record, error) {
	var rec splits.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", splits.ErrMalformedRecord, kind, err)
	}
	return &rec, nil
}
