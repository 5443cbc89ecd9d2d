package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/game-stats/internal/types"
)

// CountryRepository stores the latest regional distribution per region
type CountryRepository struct {
	pool *pgxpool.Pool
}

// NewCountryRepository creates a new country repository
func NewCountryRepository(pool *pgxpool.Pool) *CountryRepository {
	return &CountryRepository{pool: pool}
}

// Upsert writes every distribution in one batch, keyed by region code
func (r *CountryRepository) Upsert(ctx context.Context, countries []types.CountryDistribution) error {
	if len(countries) == 0 {
		return nil
	}

	query := `
		INSERT INTO countries (code, name, total_players, games, last_update)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code)
		DO UPDATE SET
			name = EXCLUDED.name,
			total_players = EXCLUDED.total_players,
			games = EXCLUDED.games,
			last_update = EXCLUDED.last_update
	`

	batch := &pgx.Batch{}
	for _, c := range countries {
		games := c.Games
		if games == nil {
			games = map[string]types.RegionalGameStat{}
		}
		gamesJSON, err := json.Marshal(games)
		if err != nil {
			return fmt.Errorf("failed to marshal games for %s: %w", c.Code, err)
		}
		batch.Queue(query, c.Code, c.Name, c.TotalPlayers, gamesJSON, c.LastUpdate)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for _, c := range countries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert country %s: %w", c.Code, err)
		}
	}
	return nil
}

// ListAll returns every stored distribution, largest first
func (r *CountryRepository) ListAll(ctx context.Context) ([]types.CountryDistribution, error) {
	query := `
		SELECT code, name, total_players, games, last_update
		FROM countries
		ORDER BY total_players DESC, code ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query countries: %w", err)
	}
	defer rows.Close()

	var countries []types.CountryDistribution
	for rows.Next() {
		var c types.CountryDistribution
		var gamesJSON []byte

		if err := rows.Scan(&c.Code, &c.Name, &c.TotalPlayers, &gamesJSON, &c.LastUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan country row: %w", err)
		}
		if err := json.Unmarshal(gamesJSON, &c.Games); err != nil {
			return nil, fmt.Errorf("failed to unmarshal country games: %w", err)
		}
		countries = append(countries, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating country rows: %w", err)
	}
	return countries, nil
}
