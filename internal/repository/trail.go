package repository

import (
	"context"
	"errors"
	"fmt"

	"replay/crumbs/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrailRepository interface {
	SaveTrail(ctx context.Context, trail *domain.Trail) error
	GetTrail(ctx context.Context, replayID string) (*domain.Trail, error)
	Migrate(ctx context.Context) error
}

type trailRepository struct {
	db *pgxpool.Pool
}

func NewTrailRepository(db *pgxpool.Pool) TrailRepository {
	return &trailRepository{
		db: db,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS replays (
	id            TEXT PRIMARY KEY,
	project       TEXT NOT NULL DEFAULT '',
	started_at_ms BIGINT NOT NULL DEFAULT 0,
	crumb_count   INTEGER NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS replay_breadcrumbs (
	replay_id    TEXT NOT NULL REFERENCES replays(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	crumb_id     TEXT NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	timestamp_ms BIGINT NOT NULL DEFAULT 0,
	to_url       TEXT NOT NULL DEFAULT '',
	from_url     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (replay_id, seq)
);`

func (r *trailRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// SaveTrail replaces the stored breadcrumbs of a replay in one transaction
func (r *trailRepository) SaveTrail(ctx context.Context, trail *domain.Trail) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	replay := trail.Replay
	_, err = tx.Exec(ctx, `
	INSERT INTO replays (id, project, started_at_ms, crumb_count, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (id)
	DO UPDATE SET project = $2, started_at_ms = $3, crumb_count = $4, updated_at = now()`,
		replay.ID, replay.ProjectSlug, replay.StartedAt, len(trail.Breadcrumbs))
	if err != nil {
		return fmt.Errorf("failed to save replay %s: %w", replay.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM replay_breadcrumbs WHERE replay_id = $1`, replay.ID); err != nil {
		return fmt.Errorf("failed to clear breadcrumbs of replay %s: %w", replay.ID, err)
	}

	batch := &pgx.Batch{}
	for seq, crumb := range trail.Breadcrumbs {
		batch.Queue(`
		INSERT INTO replay_breadcrumbs (replay_id, seq, crumb_id, type, category, timestamp_ms, to_url, from_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			replay.ID, seq, crumb.ID, crumb.Type, crumb.Category, crumb.Timestamp, crumb.Data.To, crumb.Data.From)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save breadcrumbs of replay %s: %w", replay.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trail of replay %s: %w", replay.ID, err)
	}

	return nil
}

func (r *trailRepository) GetTrail(ctx context.Context, replayID string) (*domain.Trail, error) {
	trail := &domain.Trail{Breadcrumbs: make([]domain.Breadcrumb, 0)}

	err := r.db.QueryRow(ctx,
		`SELECT id, project, started_at_ms, crumb_count FROM replays WHERE id = $1`, replayID,
	).Scan(&trail.Replay.ID, &trail.Replay.ProjectSlug, &trail.Replay.StartedAt, &trail.Replay.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReplayNotFound
		}
		return nil, fmt.Errorf("failed to load replay %s: %w", replayID, err)
	}

	rows, err := r.db.Query(ctx, `
	SELECT crumb_id, type, category, timestamp_ms, to_url, from_url
	FROM replay_breadcrumbs
	WHERE replay_id = $1
	ORDER BY seq`, replayID)
	if err != nil {
		return nil, fmt.Errorf("failed to load breadcrumbs of replay %s: %w", replayID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var crumb domain.Breadcrumb
		if err := rows.Scan(&crumb.ID, &crumb.Type, &crumb.Category, &crumb.Timestamp, &crumb.Data.To, &crumb.Data.From); err != nil {
			return nil, fmt.Errorf("failed to scan breadcrumb of replay %s: %w", replayID, err)
		}
		trail.Breadcrumbs = append(trail.Breadcrumbs, crumb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read breadcrumbs of replay %s: %w", replayID, err)
	}

	return trail, nil
}
