// Package postgres implements the episode store and sample history on Postgres.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitymonitor/internal/domain"
)

// EpisodeStore persists full episode log snapshots.
type EpisodeStore struct {
	pool *pgxpool.Pool
}

// NewEpisodeStore constructs an EpisodeStore.
func NewEpisodeStore(pool *pgxpool.Pool) *EpisodeStore {
	return &EpisodeStore{pool: pool}
}

// Load returns every stored episode, newest first.
func (s *EpisodeStore) Load(ctx context.Context) ([]domain.EpisodeLogEntry, error) {
	const query = `SELECT episode_id, activity_type, started_at, ended_at, override_name
        FROM episodes ORDER BY started_at DESC, episode_id DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.EpisodeLogEntry, 0)
	for rows.Next() {
		var (
			entry    domain.EpisodeLogEntry
			activity string
			endedAt  *time.Time
		)
		if err := rows.Scan(&entry.ID, &activity, &entry.StartedAt, &endedAt, &entry.OverrideName); err != nil {
			return nil, err
		}
		entry.ActivityType = domain.ActivityType(activity)
		entry.StartedAt = entry.StartedAt.UTC()
		if endedAt != nil {
			ended := endedAt.UTC()
			entry.EndedAt = &ended
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the stored log with entries inside a single transaction.
func (s *EpisodeStore) Save(ctx context.Context, entries []domain.EpisodeLogEntry) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM episodes`); err != nil {
		return err
	}

	if len(entries) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"episodes"},
			[]string{"episode_id", "activity_type", "started_at", "ended_at", "override_name"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{e.ID, string(e.ActivityType), e.StartedAt, e.EndedAt, e.OverrideName}, nil
			}),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
