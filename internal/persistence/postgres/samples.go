package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitymonitor/internal/domain"
)

// SampleHistory stores raw samples for look-back validation queries.
type SampleHistory struct {
	pool *pgxpool.Pool
}

// NewSampleHistory constructs a SampleHistory.
func NewSampleHistory(pool *pgxpool.Pool) *SampleHistory {
	return &SampleHistory{pool: pool}
}

// Record inserts one sample.
func (h *SampleHistory) Record(ctx context.Context, sample domain.RawSample) error {
	const stmt = `INSERT INTO activity_samples (walking, running, cycling, automotive, unknown, confidence, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err := h.pool.Exec(ctx, stmt,
		sample.Walking,
		sample.Running,
		sample.Cycling,
		sample.Automotive,
		sample.Unknown,
		string(sample.Confidence),
		sample.RecordedAt,
	)
	return err
}

// Between returns samples recorded within [from, to], oldest first.
func (h *SampleHistory) Between(ctx context.Context, from, to time.Time) ([]domain.RawSample, error) {
	const query = `SELECT walking, running, cycling, automotive, unknown, confidence, recorded_at
        FROM activity_samples
        WHERE recorded_at >= $1 AND recorded_at <= $2
        ORDER BY recorded_at, sample_id`

	rows, err := h.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]domain.RawSample, 0)
	for rows.Next() {
		var (
			s          domain.RawSample
			confidence string
		)
		if err := rows.Scan(&s.Walking, &s.Running, &s.Cycling, &s.Automotive, &s.Unknown, &confidence, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Confidence = domain.Confidence(confidence)
		s.RecordedAt = s.RecordedAt.UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Prune deletes samples recorded before cutoff and reports how many were removed.
func (h *SampleHistory) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.pool.Exec(ctx, `DELETE FROM activity_samples WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
