package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/models"
)

// PostgresStore persists signals in PostgreSQL. The full signal record lives
// in a JSONB column; the columns used for lookups and transitions are lifted
// out and indexed.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgresStore(cfg config.DatabaseConfig, logger zerolog.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info().Str("database", cfg.Database).Msg("connected to postgres")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id           TEXT PRIMARY KEY,
			symbol       TEXT NOT NULL,
			timeframe    TEXT NOT NULL,
			ts           TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL,
			action       TEXT NOT NULL,
			confidence   DOUBLE PRECISION NOT NULL,
			record       JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (symbol, timeframe, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_slot ON signals (symbol, timeframe, status)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertSignal(ctx context.Context, signal models.Signal) (bool, error) {
	record, err := json.Marshal(signal)
	if err != nil {
		return false, fmt.Errorf("marshaling signal %s: %w", signal.ID, err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO signals (id, symbol, timeframe, ts, status, action, confidence, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, ts) DO NOTHING`,
		signal.ID, signal.Symbol, string(signal.Timeframe), signal.Timestamp,
		string(signal.Status), string(signal.Action), signal.Confidence, record,
	)
	if err != nil {
		return false, fmt.Errorf("upserting signal %s: %w", signal.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FindActive(ctx context.Context) ([]models.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM signals WHERE status = $1 ORDER BY id`,
		string(models.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("querying active signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		var signal models.Signal
		if err := json.Unmarshal(record, &signal); err != nil {
			return nil, fmt.Errorf("decoding signal record: %w", err)
		}
		signals = append(signals, signal)
	}
	return signals, rows.Err()
}

func (s *PostgresStore) FindActiveBySlot(ctx context.Context, symbol string, timeframe models.Timeframe) (*models.Signal, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `
		SELECT record FROM signals
		WHERE symbol = $1 AND timeframe = $2 AND status = $3
		ORDER BY ts DESC LIMIT 1`,
		symbol, string(timeframe), string(models.StatusActive),
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying slot %s/%s: %w", symbol, timeframe, err)
	}
	var signal models.Signal
	if err := json.Unmarshal(record, &signal); err != nil {
		return nil, fmt.Errorf("decoding signal record: %w", err)
	}
	return &signal, nil
}

// UpdateStatus performs the conditional terminal transition. The WHERE clause
// on the current ACTIVE status makes concurrent transitions race safely:
// exactly one wins, the rest see ErrNotActive.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.SignalStatus, performance models.SignalPerformance) error {
	if !status.IsTerminal() {
		return ErrNotTerminal
	}
	perf, err := json.Marshal(performance)
	if err != nil {
		return fmt.Errorf("marshaling performance for %s: %w", id, err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE signals
		SET status = $2,
		    record = jsonb_set(jsonb_set(record, '{status}', to_jsonb($2::text)), '{performance}', $3::jsonb),
		    updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, string(status), perf, string(models.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("updating signal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotActive
	}
	return nil
}

func (s *PostgresStore) Close() { s.pool.Close() }
