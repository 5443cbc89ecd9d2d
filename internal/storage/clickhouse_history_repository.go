package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/game-stats/internal/types"
)

// ClickHouseHistoryRepository stores player count samples in ClickHouse.
// The table carries its own 7-day TTL; DeleteOlderThan enforces shorter retention.
type ClickHouseHistoryRepository struct {
	db *ClickHouseDB
}

// NewClickHouseHistoryRepository creates a new ClickHouse history repository
func NewClickHouseHistoryRepository(db *ClickHouseDB) *ClickHouseHistoryRepository {
	return &ClickHouseHistoryRepository{db: db}
}

// Insert appends samples in one batch
func (r *ClickHouseHistoryRepository) Insert(ctx context.Context, points []types.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.conn.PrepareBatch(ctx, `
		INSERT INTO player_count_history (game_id, player_count, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, p := range points {
		count := p.PlayerCount
		if count < 0 {
			count = 0
		}
		if err := batch.Append(p.GameID, uint32(count), p.RecordedAt.UTC()); err != nil { // #nosec G115 - clamped above
			return fmt.Errorf("failed to append history row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send history batch: %w", err)
	}
	return nil
}

// ListSince returns a game's samples recorded at or after since, oldest first
func (r *ClickHouseHistoryRepository) ListSince(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error) {
	rows, err := r.db.conn.Query(ctx, `
		SELECT game_id, player_count, recorded_at
		FROM player_count_history
		WHERE game_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC
	`, gameID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var points []types.HistoryPoint
	for rows.Next() {
		var (
			id        string
			count     uint32
			timestamp time.Time
		)
		if err := rows.Scan(&id, &count, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		points = append(points, types.HistoryPoint{
			GameID:      id,
			PlayerCount: int(count),
			RecordedAt:  timestamp,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return points, nil
}

// DeleteOlderThan removes samples recorded before cutoff. ClickHouse mutations do not
// report affected rows, so the count is taken just before the delete is issued.
func (r *ClickHouseHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count uint64
	row := r.db.conn.QueryRow(ctx, `SELECT count() FROM player_count_history WHERE recorded_at < ?`, cutoff.UTC())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count old history: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := r.db.Exec(ctx, `ALTER TABLE player_count_history DELETE WHERE recorded_at < ?`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("failed to delete old history: %w", err)
	}
	return int64(count), nil // #nosec G115 - row counts fit in int64
}
