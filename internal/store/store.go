// Package store persists ledgers in SQLite so merged and completed run data
// can be reloaded without re-reading every run folder.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalnine/rundown/internal/ledger"
	"github.com/signalnine/rundown/internal/space"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS configs (
	id          TEXT PRIMARY KEY,
	values_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
	config_id TEXT NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	instance  TEXT NOT NULL,
	seed      INTEGER NOT NULL,
	cost      REAL,
	runtime   REAL,
	status    TEXT NOT NULL,
	origin    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_key ON observations(config_id, instance, seed);
`

type Store struct {
	conn *sql.DB
	path string
}

// Open opens or creates the ledger database at path with WAL journaling and
// foreign keys on.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		path, int((5 * time.Second).Milliseconds()))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{conn: conn, path: path}, nil
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) Path() string { return s.path }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Save replaces the stored ledger with l in one transaction. A store that
// already holds a ledger over an incompatible space is left untouched.
func (s *Store) Save(ctx context.Context, l *ledger.Ledger) error {
	params, err := json.Marshal(l.Space().Params())
	if err != nil {
		return fmt.Errorf("encoding space: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var fp string
		err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&fp)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("reading fingerprint: %w", err)
		case fp != l.Space().Fingerprint():
			return fmt.Errorf("saving to %s: %w", s.path, ledger.ErrSchemaMismatch)
		}

		for _, q := range []string{`DELETE FROM observations`, `DELETE FROM configs`, `DELETE FROM meta`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clearing store: %w", err)
			}
		}
		meta := map[string]string{
			"fingerprint": l.Space().Fingerprint(),
			"space":       string(params),
			"saved_at":    time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range meta {
			if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
				return fmt.Errorf("writing meta: %w", err)
			}
		}

		for _, cfg := range l.Configs() {
			values, err := json.Marshal(cfg.Values())
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO configs (id, values_json) VALUES (?, ?)`, cfg.ID(), string(values)); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations
			(config_id, instance, seed, cost, runtime, status, origin) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, k := range l.Keys() {
			for _, v := range l.Observations(k) {
				if _, err := stmt.ExecContext(ctx, k.ConfigID, k.Instance, k.Seed,
					nullable(v.Cost), nullable(v.Runtime), string(v.Status), string(v.Origin)); err != nil {
					return fmt.Errorf("writing run %s: %w", k, err)
				}
			}
		}
		return nil
	})
}

// Space rebuilds the space the stored ledger was saved with.
func (s *Store) Space(ctx context.Context) (*space.Space, error) {
	var raw string
	if err := s.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'space'`).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s holds no ledger", s.path)
		}
		return nil, fmt.Errorf("reading space: %w", err)
	}
	var params []space.Hyperparameter
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("decoding space: %w", err)
	}
	return space.New(params)
}

// Load rebuilds the stored ledger over sp, or over the stored space when sp
// is nil. Every observation keeps its origin.
func (s *Store) Load(ctx context.Context, sp *space.Space, opts ...ledger.Option) (*ledger.Ledger, error) {
	stored, err := s.Space(ctx)
	if err != nil {
		return nil, err
	}
	if sp == nil {
		sp = stored
	} else if !sp.Compatible(stored) {
		return nil, fmt.Errorf("loading %s: %w", s.path, ledger.ErrSchemaMismatch)
	}

	configs := map[string]space.Configuration{}
	rows, err := s.conn.QueryContext(ctx, `SELECT id, values_json FROM configs`)
	if err != nil {
		return nil, fmt.Errorf("querying configs: %w", err)
	}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		var values map[string]string
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding config %s: %w", id, err)
		}
		cfg, err := sp.Configuration(values)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("config %s: %w", id, err)
		}
		configs[id] = cfg
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	l := ledger.New(sp, opts...)
	rows, err = s.conn.QueryContext(ctx, `SELECT config_id, instance, seed, cost, runtime, status, origin
		FROM observations ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, inst, status, origin string
			seed                     int64
			cost, runtime            sql.NullFloat64
		)
		if err := rows.Scan(&id, &inst, &seed, &cost, &runtime, &status, &origin); err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		cfg, ok := configs[id]
		if !ok {
			return nil, fmt.Errorf("observation references unknown config %s", id)
		}
		v := ledger.RunValue{
			Cost:    orNaN(cost),
			Runtime: orNaN(runtime),
			Status:  ledger.Status(status),
			Origin:  ledger.Origin(origin),
		}
		if err := l.Add(cfg, inst, seed, v); err != nil {
			return nil, err
		}
	}
	return l, rows.Err()
}

func nullable(f float64) any {
	if math.IsNaN(f) {
		return nil
	}
	return f
}

func orNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
