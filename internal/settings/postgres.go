package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/botcall/internal/reliability"
)

const settingsRowID = "default"

var schemaRetry = reliability.Policy{Attempts: 5, Base: 250 * time.Millisecond, Cap: 4 * time.Second}

// PostgresStore persists settings in a single PostgreSQL row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// The database often comes up alongside the service.
	err = reliability.Retry(ctx, schemaRetry, func(ctx context.Context) error {
		return initSchema(ctx, pool)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_settings (
			id TEXT PRIMARY KEY,
			endpoint_url TEXT NOT NULL DEFAULT '',
			api_key TEXT NOT NULL DEFAULT '',
			preferred_mic_id TEXT NOT NULL DEFAULT '',
			mic_enabled_default BOOLEAN NOT NULL DEFAULT TRUE,
			cam_enabled_default BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.pool.QueryRow(ctx,
		`SELECT endpoint_url, api_key, preferred_mic_id, mic_enabled_default, cam_enabled_default
		 FROM call_settings WHERE id=$1`,
		settingsRowID,
	).Scan(&out.EndpointURL, &out.APIKey, &out.PreferredMicID, &out.MicEnabledDefault, &out.CamEnabledDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, creds Credentials) error {
	next := Defaults().apply(creds)
	var mic *string
	if creds.PreferredMicID != nil {
		mic = &next.PreferredMicID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_settings (id, endpoint_url, api_key, preferred_mic_id, mic_enabled_default, cam_enabled_default, updated_at)
		 VALUES ($1, $2, $3, COALESCE($4::text, ''), $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			endpoint_url = EXCLUDED.endpoint_url,
			api_key = EXCLUDED.api_key,
			preferred_mic_id = COALESCE($4::text, call_settings.preferred_mic_id),
			updated_at = EXCLUDED.updated_at`,
		settingsRowID,
		next.EndpointURL,
		next.APIKey,
		mic,
		next.MicEnabledDefault,
		next.CamEnabledDefault,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
