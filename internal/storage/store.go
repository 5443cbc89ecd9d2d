package storage

import (
	"context"
	"sort"
	"time"

	"github.com/game-stats/internal/types"
)

// GameStore persists the latest game rows
type GameStore interface {
	Upsert(ctx context.Context, games []types.Game) error
	ListAll(ctx context.Context) ([]types.Game, error)
}

// CountryStore persists the latest regional distribution rows
type CountryStore interface {
	Upsert(ctx context.Context, countries []types.CountryDistribution) error
	ListAll(ctx context.Context) ([]types.CountryDistribution, error)
}

// HistoryStore persists player count samples. Implemented by the Postgres
// and ClickHouse history repositories.
type HistoryStore interface {
	Insert(ctx context.Context, points []types.HistoryPoint) error
	ListSince(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the persistent store used by the aggregator, the retention worker and the API
type Store struct {
	games     GameStore
	countries CountryStore
	history   HistoryStore
}

// NewStore composes the repositories into one store
func NewStore(games GameStore, countries CountryStore, history HistoryStore) *Store {
	return &Store{
		games:     games,
		countries: countries,
		history:   history,
	}
}

// SaveGames upserts the game rows
func (s *Store) SaveGames(ctx context.Context, games []types.Game) error {
	return s.games.Upsert(ctx, games)
}

// SaveCountries upserts the country rows
func (s *Store) SaveCountries(ctx context.Context, countries []types.CountryDistribution) error {
	return s.countries.Upsert(ctx, countries)
}

// AppendHistory records player count samples
func (s *Store) AppendHistory(ctx context.Context, points []types.HistoryPoint) error {
	return s.history.Insert(ctx, points)
}

// History returns a game's samples since the given time
func (s *Store) History(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error) {
	return s.history.ListSince(ctx, gameID, since)
}

// PurgeHistory deletes samples older than cutoff
func (s *Store) PurgeHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.history.DeleteOlderThan(ctx, cutoff)
}

// LoadLatest rebuilds a snapshot from the stored rows. It returns nil when nothing
// has been persisted yet.
func (s *Store) LoadLatest(ctx context.Context) (*types.Snapshot, error) {
	games, err := s.games.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}

	countries, err := s.countries.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(games, func(i, j int) bool {
		return games[i].CurrentPlayers > games[j].CurrentPlayers
	})

	var latest time.Time
	for _, g := range games {
		if g.LastUpdate.After(latest) {
			latest = g.LastUpdate
		}
	}

	return &types.Snapshot{
		Games:       games,
		Countries:   countries,
		GlobalStats: types.SummarizeGames(games, latest),
	}, nil
}
