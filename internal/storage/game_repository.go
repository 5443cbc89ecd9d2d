package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/game-stats/internal/types"
)

// GameRepository stores the latest known state of each tracked game
type GameRepository struct {
	pool *pgxpool.Pool
}

// NewGameRepository creates a new game repository
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

const upsertGameQuery = `
	INSERT INTO games (
		id, app_id, name, current_players, peak_players_24h, trend,
		description, header_image, rating, genres, tags,
		positive_reviews, negative_reviews, average_playtime, recent_playtime,
		price, owners, sources, last_update
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id)
	DO UPDATE SET
		app_id = EXCLUDED.app_id,
		name = EXCLUDED.name,
		current_players = EXCLUDED.current_players,
		peak_players_24h = EXCLUDED.peak_players_24h,
		trend = EXCLUDED.trend,
		description = EXCLUDED.description,
		header_image = EXCLUDED.header_image,
		rating = EXCLUDED.rating,
		genres = EXCLUDED.genres,
		tags = EXCLUDED.tags,
		positive_reviews = EXCLUDED.positive_reviews,
		negative_reviews = EXCLUDED.negative_reviews,
		average_playtime = EXCLUDED.average_playtime,
		recent_playtime = EXCLUDED.recent_playtime,
		price = EXCLUDED.price,
		owners = EXCLUDED.owners,
		sources = EXCLUDED.sources,
		last_update = EXCLUDED.last_update
`

// Upsert writes every game in one batch. Rows are keyed by game ID; the last write wins.
func (r *GameRepository) Upsert(ctx context.Context, games []types.Game) error {
	if len(games) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range games {
		g := &games[i]

		genresJSON, err := json.Marshal(nonNilStrings(g.Genres))
		if err != nil {
			return fmt.Errorf("failed to marshal genres for %s: %w", g.ID, err)
		}
		tagsJSON, err := json.Marshal(nonNilStrings(g.Tags))
		if err != nil {
			return fmt.Errorf("failed to marshal tags for %s: %w", g.ID, err)
		}
		sourcesJSON, err := json.Marshal(g.Sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources for %s: %w", g.ID, err)
		}

		batch.Queue(upsertGameQuery,
			g.ID,
			g.AppID,
			g.Name,
			g.CurrentPlayers,
			g.PeakPlayers24h,
			string(g.Trend),
			g.Description,
			g.HeaderImage,
			g.Rating,
			genresJSON,
			tagsJSON,
			g.PositiveReviews,
			g.NegativeReviews,
			g.AveragePlaytime,
			g.RecentPlaytime,
			g.Price,
			g.Owners,
			sourcesJSON,
			g.LastUpdate,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for i := range games {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert game %s: %w", games[i].ID, err)
		}
	}
	return nil
}

// ListAll returns every stored game, most players first
func (r *GameRepository) ListAll(ctx context.Context) ([]types.Game, error) {
	query := `
		SELECT
			id, app_id, name, current_players, peak_players_24h, trend,
			description, header_image, rating, genres, tags,
			positive_reviews, negative_reviews, average_playtime, recent_playtime,
			price, owners, sources, last_update
		FROM games
		ORDER BY current_players DESC, id ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []types.Game
	for rows.Next() {
		var g types.Game
		var trend string
		var genresJSON, tagsJSON, sourcesJSON []byte

		err := rows.Scan(
			&g.ID,
			&g.AppID,
			&g.Name,
			&g.CurrentPlayers,
			&g.PeakPlayers24h,
			&trend,
			&g.Description,
			&g.HeaderImage,
			&g.Rating,
			&genresJSON,
			&tagsJSON,
			&g.PositiveReviews,
			&g.NegativeReviews,
			&g.AveragePlaytime,
			&g.RecentPlaytime,
			&g.Price,
			&g.Owners,
			&sourcesJSON,
			&g.LastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		g.Trend = types.Trend(trend)

		if err := json.Unmarshal(genresJSON, &g.Genres); err != nil {
			return nil, fmt.Errorf("failed to unmarshal genres: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &g.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		if err := json.Unmarshal(sourcesJSON, &g.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		if len(g.Genres) == 0 {
			g.Genres = nil
		}
		if len(g.Tags) == 0 {
			g.Tags = nil
		}

		games = append(games, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return games, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
