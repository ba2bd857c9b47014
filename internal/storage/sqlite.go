package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"pollwatch/internal/pkg"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the sqlite database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func NewSQLite(ctx context.Context, path string) (Storer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite: %w", err)
	}
	// sqlite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent ticks.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging sqlite: %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("error applying %s: %w", pragma, err)
		}
	}

	store := &sqliteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}
	return store, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS configurations (
	id               TEXT PRIMARY KEY,
	owner_key        TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	method           TEXT NOT NULL,
	base_url         TEXT NOT NULL,
	endpoint         TEXT NOT NULL DEFAULT '',
	params           TEXT NOT NULL DEFAULT '{}',
	headers          TEXT NOT NULL DEFAULT '{}',
	extra_body       TEXT NOT NULL DEFAULT '{}',
	interval_minutes REAL NOT NULL,
	start_at         TEXT NOT NULL,
	stop_at          TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	activated_at     TEXT,
	is_active        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_configurations_owner_key ON configurations (owner_key);
CREATE INDEX IF NOT EXISTS idx_configurations_stop_at ON configurations (stop_at);

CREATE TABLE IF NOT EXISTS call_results (
	id            TEXT PRIMARY KEY,
	config_id     TEXT NOT NULL,
	called_at     TEXT NOT NULL,
	is_successful INTEGER NOT NULL,
	response_data TEXT,
	error_message TEXT,
	FOREIGN KEY(config_id) REFERENCES configurations(id)
);
CREATE INDEX IF NOT EXISTS idx_call_results_config_called ON call_results (config_id, called_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) InsertConfiguration(ctx context.Context, cfg *pkg.Configuration) error {
	params, err := json.Marshal(cfg.Params)
	if err != nil {
		return fmt.Errorf("%w: encoding params: %v", pkg.ErrStore, err)
	}
	headers, err := json.Marshal(cfg.Headers)
	if err != nil {
		return fmt.Errorf("%w: encoding headers: %v", pkg.ErrStore, err)
	}
	extraBody, err := json.Marshal(cfg.ExtraBody)
	if err != nil {
		return fmt.Errorf("%w: encoding extra body: %v", pkg.ErrStore, err)
	}

	query := `
		INSERT INTO configurations (
			id, owner_key, name, description, method, base_url, endpoint,
			params, headers, extra_body, interval_minutes,
			start_at, stop_at, created_at, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.OwnerKey,
		cfg.Name,
		cfg.Description,
		cfg.Method,
		cfg.BaseURL,
		cfg.Endpoint,
		string(params),
		string(headers),
		string(extraBody),
		cfg.Interval.Minutes(),
		cfg.StartAt.UTC().Format(time.RFC3339Nano),
		cfg.StopAt.UTC().Format(time.RFC3339Nano),
		cfg.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(cfg.IsActive),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting configuration: %v", pkg.ErrStore, err)
	}
	return nil
}

const configColumns = `
	id, owner_key, name, description, method, base_url, endpoint,
	params, headers, extra_body, interval_minutes,
	start_at, stop_at, created_at, activated_at, is_active
`

func (s *sqliteStore) GetConfigurationByID(ctx context.Context, id string) (*pkg.Configuration, error) {
	query := `SELECT ` + configColumns + ` FROM configurations WHERE id = ?`
	cfg, err := scanConfiguration(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: configuration %s", pkg.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching configuration: %v", pkg.ErrStore, err)
	}
	return cfg, nil
}

func (s *sqliteStore) ListActivatedUnfinished(ctx context.Context, now time.Time) ([]*pkg.Configuration, error) {
	query := `SELECT ` + configColumns + `
		FROM configurations
		WHERE activated_at IS NOT NULL AND stop_at > ?`
	rows, err := s.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("%w: listing activated configurations: %v", pkg.ErrStore, err)
	}
	defer rows.Close()

	var configs []*pkg.Configuration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning configuration: %v", pkg.ErrStore, err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing activated configurations: %v", pkg.ErrStore, err)
	}
	return configs, nil
}

func (s *sqliteStore) MarkActivated(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE configurations SET activated_at = ? WHERE id = ? AND activated_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339Nano), id); err != nil {
		return fmt.Errorf("%w: marking activated: %v", pkg.ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	// Conditional update keeps the flip idempotent under concurrent ticks.
	query := `UPDATE configurations SET is_active = ? WHERE id = ? AND is_active = ?`
	res, err := s.db.ExecContext(ctx, query, boolToInt(active), id, boolToInt(!active))
	if err != nil {
		return false, fmt.Errorf("%w: updating is_active: %v", pkg.ErrStore, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: updating is_active: %v", pkg.ErrStore, err)
	}
	return affected > 0, nil
}

func (s *sqliteStore) InsertCallResult(ctx context.Context, result *pkg.CallResult) error {
	if err := s.execInsertResult(ctx, s.db.ExecContext, result); err != nil {
		return err
	}
	return nil
}

func (s *sqliteStore) InsertFinalCallResult(ctx context.Context, result *pkg.CallResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", pkg.ErrStore, err)
	}
	defer tx.Rollback()

	if err := s.execInsertResult(ctx, tx.ExecContext, result); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE configurations SET is_active = 0 WHERE id = ?`, result.ConfigID); err != nil {
		return fmt.Errorf("%w: clearing is_active: %v", pkg.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing final result: %v", pkg.ErrStore, err)
	}
	return nil
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *sqliteStore) execInsertResult(ctx context.Context, exec execFunc, result *pkg.CallResult) error {
	var responseData, errorMessage sql.NullString
	if result.IsSuccessful {
		responseData = sql.NullString{String: string(result.ResponseData), Valid: true}
	} else {
		errorMessage = sql.NullString{String: result.ErrorMessage, Valid: true}
	}

	query := `
		INSERT INTO call_results (id, config_id, called_at, is_successful, response_data, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := exec(ctx, query,
		result.ID,
		result.ConfigID,
		result.CalledAt.UTC().Format(time.RFC3339Nano),
		boolToInt(result.IsSuccessful),
		responseData,
		errorMessage,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting call result: %v", pkg.ErrStore, err)
	}
	return nil
}

func (s *sqliteStore) ListCallResults(ctx context.Context, configID string, limit int) ([]*pkg.CallResult, error) {
	query := `
		SELECT id, config_id, called_at, is_successful, response_data, error_message
		FROM call_results
		WHERE config_id = ?
		ORDER BY called_at DESC
	`
	args := []any{configID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying call results: %v", pkg.ErrStore, err)
	}
	defer rows.Close()

	var results []*pkg.CallResult
	for rows.Next() {
		var r pkg.CallResult
		var calledAt string
		var successful int
		var responseData, errorMessage sql.NullString
		if err := rows.Scan(&r.ID, &r.ConfigID, &calledAt, &successful, &responseData, &errorMessage); err != nil {
			return nil, fmt.Errorf("%w: scanning call result: %v", pkg.ErrStore, err)
		}
		if r.CalledAt, err = time.Parse(time.RFC3339Nano, calledAt); err != nil {
			return nil, fmt.Errorf("%w: parsing called_at: %v", pkg.ErrStore, err)
		}
		r.IsSuccessful = successful != 0
		if responseData.Valid {
			r.ResponseData = json.RawMessage(responseData.String)
		}
		r.ErrorMessage = errorMessage.String
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: querying call results: %v", pkg.ErrStore, err)
	}
	return results, nil
}

func (s *sqliteStore) ResultStats(ctx context.Context, configID string) (int, int, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(is_successful), 0)
		FROM call_results
		WHERE config_id = ?
	`
	var total, successes int
	if err := s.db.QueryRowContext(ctx, query, configID).Scan(&total, &successes); err != nil {
		return 0, 0, fmt.Errorf("%w: counting call results: %v", pkg.ErrStore, err)
	}
	return total, successes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row rowScanner) (*pkg.Configuration, error) {
	var cfg pkg.Configuration
	var params, headers, extraBody string
	var intervalMinutes float64
	var startAt, stopAt, createdAt string
	var activatedAt sql.NullString
	var active int

	err := row.Scan(
		&cfg.ID,
		&cfg.OwnerKey,
		&cfg.Name,
		&cfg.Description,
		&cfg.Method,
		&cfg.BaseURL,
		&cfg.Endpoint,
		&params,
		&headers,
		&extraBody,
		&intervalMinutes,
		&startAt,
		&stopAt,
		&createdAt,
		&activatedAt,
		&active,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(params), &cfg.Params); err != nil {
		return nil, fmt.Errorf("decoding params: %w", err)
	}
	if err := json.Unmarshal([]byte(headers), &cfg.Headers); err != nil {
		return nil, fmt.Errorf("decoding headers: %w", err)
	}
	if err := json.Unmarshal([]byte(extraBody), &cfg.ExtraBody); err != nil {
		return nil, fmt.Errorf("decoding extra body: %w", err)
	}

	cfg.Interval = time.Duration(intervalMinutes * float64(time.Minute))
	if cfg.StartAt, err = time.Parse(time.RFC3339Nano, startAt); err != nil {
		return nil, fmt.Errorf("parsing start_at: %w", err)
	}
	if cfg.StopAt, err = time.Parse(time.RFC3339Nano, stopAt); err != nil {
		return nil, fmt.Errorf("parsing stop_at: %w", err)
	}
	if cfg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if activatedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, activatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing activated_at: %w", err)
		}
		cfg.ActivatedAt = &t
	}
	cfg.IsActive = active != 0
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
