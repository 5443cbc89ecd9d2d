package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/game-stats/internal/types"
)

// HistoryRepository stores player count samples in Postgres
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Insert appends samples using COPY
func (r *HistoryRepository) Insert(ctx context.Context, points []types.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"player_count_history"},
		[]string{"game_id", "player_count", "recorded_at"},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			return []any{p.GameID, p.PlayerCount, p.RecordedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// ListSince returns a game's samples recorded at or after since, oldest first
func (r *HistoryRepository) ListSince(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error) {
	query := `
		SELECT game_id, player_count, recorded_at
		FROM player_count_history
		WHERE game_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`

	rows, err := r.pool.Query(ctx, query, gameID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.HistoryPoint, error) {
		var p types.HistoryPoint
		err := row.Scan(&p.GameID, &p.PlayerCount, &p.RecordedAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history rows: %w", err)
	}
	return points, nil
}

// DeleteOlderThan removes samples recorded before cutoff and returns how many were removed
func (r *HistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM player_count_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}
	return tag.RowsAffected(), nil
}
