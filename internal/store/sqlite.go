// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides bot-config persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS bot_configs (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			auto_reconnect INTEGER NOT NULL DEFAULT 1,
			reconnect_interval_seconds INTEGER NOT NULL DEFAULT 5,
			max_reconnect_attempts INTEGER NOT NULL DEFAULT 3,
			wander_enabled INTEGER NOT NULL DEFAULT 0,
			chat_enabled INTEGER NOT NULL DEFAULT 0,
			use_random_names INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (port > 0 AND port <= 65535)
		);

		CREATE INDEX IF NOT EXISTS idx_bot_configs_active
			ON bot_configs(is_active);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

const configColumns = `id, username, host, port, auto_reconnect,
	reconnect_interval_seconds, max_reconnect_attempts,
	wander_enabled, chat_enabled, use_random_names, is_active,
	created_at, updated_at`

// GetConfig retrieves one bot configuration by ID.
func (s *SQLiteStore) GetConfig(ctx context.Context, id string) (*BotConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM bot_configs WHERE id = ?`, id)

	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bot config: %w", err)
	}
	return cfg, nil
}

// ListConfigs returns all bot configurations ordered by creation time.
func (s *SQLiteStore) ListConfigs(ctx context.Context) ([]*BotConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM bot_configs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying bot configs: %w", err)
	}
	defer rows.Close()

	var configs []*BotConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bot config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bot configs: %w", err)
	}
	return configs, nil
}

// CreateConfig inserts a new bot configuration. A missing ID is filled with
// a fresh UUID; timestamps are set here.
func (s *SQLiteStore) CreateConfig(ctx context.Context, cfg *BotConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating bot config: %w", err)
	}

	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.Username, cfg.Host, cfg.Port,
		boolToInt(cfg.AutoReconnect), cfg.ReconnectIntervalSec, cfg.MaxReconnectAttempts,
		boolToInt(cfg.WanderEnabled), boolToInt(cfg.ChatEnabled), boolToInt(cfg.UseRandomNames),
		boolToInt(cfg.IsActive), cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting bot config: %w", err)
	}

	cfg.ReconnectInterval = time.Duration(cfg.ReconnectIntervalSec) * time.Second
	s.logger.Info("bot config created", "bot_id", cfg.ID, "host", cfg.Host, "port", cfg.Port)
	return nil
}

// UpdateConfig rewrites an existing configuration.
func (s *SQLiteStore) UpdateConfig(ctx context.Context, cfg *BotConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating bot config: %w", err)
	}

	cfg.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE bot_configs SET
			username = ?, host = ?, port = ?, auto_reconnect = ?,
			reconnect_interval_seconds = ?, max_reconnect_attempts = ?,
			wander_enabled = ?, chat_enabled = ?, use_random_names = ?,
			is_active = ?, updated_at = ?
		WHERE id = ?`,
		cfg.Username, cfg.Host, cfg.Port, boolToInt(cfg.AutoReconnect),
		cfg.ReconnectIntervalSec, cfg.MaxReconnectAttempts,
		boolToInt(cfg.WanderEnabled), boolToInt(cfg.ChatEnabled), boolToInt(cfg.UseRandomNames),
		boolToInt(cfg.IsActive), cfg.UpdatedAt, cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("updating bot config: %w", err)
	}
	return requireRowAffected(res)
}

// DeleteConfig removes a configuration.
func (s *SQLiteStore) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting bot config: %w", err)
	}
	return requireRowAffected(res)
}

// SetActiveFlag persists the desired-run state without touching other fields.
func (s *SQLiteStore) SetActiveFlag(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bot_configs SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("setting active flag: %w", err)
	}
	return requireRowAffected(res)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*BotConfig, error) {
	var cfg BotConfig
	var autoReconnect, wander, chat, random, active int
	err := row.Scan(
		&cfg.ID, &cfg.Username, &cfg.Host, &cfg.Port,
		&autoReconnect, &cfg.ReconnectIntervalSec, &cfg.MaxReconnectAttempts,
		&wander, &chat, &random, &active,
		&cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.AutoReconnect = autoReconnect != 0
	cfg.WanderEnabled = wander != 0
	cfg.ChatEnabled = chat != 0
	cfg.UseRandomNames = random != 0
	cfg.IsActive = active != 0
	cfg.ReconnectInterval = time.Duration(cfg.ReconnectIntervalSec) * time.Second
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return ErrConfigNotFound
	}
	return nil
}
