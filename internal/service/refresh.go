package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/game-stats/internal/adapter"
	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/types"
)

const maxTags = 5

// gameFetch holds every upstream result for one tracked game
type gameFetch struct {
	players    int
	playersErr error

	community    *adapter.SteamSpyApp
	communityErr error

	metadata    *adapter.StoreAppDetails
	metadataErr error
}

func (f *gameFetch) playersOK() bool   { return f.playersErr == nil }
func (f *gameFetch) communityOK() bool { return f.communityErr == nil && f.community != nil }
func (f *gameFetch) metadataOK() bool  { return f.metadataErr == nil && f.metadata != nil }

func (f *gameFetch) firstError() error {
	for _, err := range []error{f.playersErr, f.communityErr, f.metadataErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// refresh builds and publishes one snapshot
func (a *Aggregator) refresh(ctx context.Context) (*types.Snapshot, error) {
	start := time.Now()
	now := a.cfg.Clock().UTC().Round(0)
	tracked := a.cfg.Catalog.Games()

	fetched := a.fetchAll(ctx, tracked)

	attempted, succeeded, failed := 0, 0, 0
	var cause error
	games := make([]types.Game, 0, len(tracked))
	for i, g := range tracked {
		f := &fetched[i]
		attempted++
		if f.playersOK() {
			succeeded++
		} else {
			failed++
		}
		if a.cfg.Community != nil {
			attempted++
			if f.communityOK() {
				succeeded++
			} else {
				failed++
			}
		}
		if a.cfg.Metadata != nil {
			attempted++
			if f.metadataOK() {
				succeeded++
			} else {
				failed++
			}
		}
		if cause == nil {
			cause = f.firstError()
		}
		games = append(games, a.buildGame(g, f, now))
	}

	if attempted > 0 && succeeded == 0 {
		a.logger.WithError(cause).WithField("calls", attempted).Error("Every upstream call failed")
		return nil, errors.NewNoDataAvailableError(fmt.Errorf("all %d upstream calls failed: %w", attempted, cause))
	}
	if failed > 0 {
		a.logger.WithError(cause).WithFields(map[string]interface{}{
			"failed":    failed,
			"succeeded": succeeded,
		}).Warn("Some upstream calls failed, publishing partial snapshot")
	}

	sort.SliceStable(games, func(i, j int) bool {
		return games[i].CurrentPlayers > games[j].CurrentPlayers
	})

	snapshot := &types.Snapshot{
		Games:       games,
		Countries:   a.cfg.Estimator.Estimate(games, now),
		GlobalStats: types.SummarizeGames(games, now),
	}
	snapshot.News, snapshot.Tournaments = a.editorial(ctx)

	a.current.Store(&cachedSnapshot{snapshot: snapshot, producedAt: now})
	a.writeThrough(ctx, snapshot)
	if a.cfg.Persister != nil {
		a.cfg.Persister.Enqueue(snapshot)
	}

	a.logger.WithFields(map[string]interface{}{
		"games":         len(games),
		"total_players": snapshot.GlobalStats.TotalPlayers,
		"duration":      time.Since(start).String(),
	}).Info("Snapshot refreshed")

	return snapshot, nil
}

// fetchAll queries every provider for every game concurrently
func (a *Aggregator) fetchAll(ctx context.Context, tracked []catalog.TrackedGame) []gameFetch {
	results := make([]gameFetch, len(tracked))
	var wg sync.WaitGroup
	for i, g := range tracked {
		wg.Add(1)
		go func(i int, g catalog.TrackedGame) {
			defer wg.Done()
			results[i] = a.fetchGame(ctx, g)
		}(i, g)
	}
	wg.Wait()
	return results
}

func (a *Aggregator) fetchGame(ctx context.Context, g catalog.TrackedGame) gameFetch {
	var f gameFetch
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
		defer cancel()
		f.players, f.playersErr = a.cfg.Players.GetCurrentPlayers(callCtx, g.AppID)
	}()

	if a.cfg.Community != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
			defer cancel()
			f.community, f.communityErr = a.cfg.Community.GetAppDetails(callCtx, g.AppID)
		}()
	}

	if a.cfg.Metadata != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.UpstreamTimeout)
			defer cancel()
			f.metadata, f.metadataErr = a.cfg.Metadata.GetAppMetadata(callCtx, g.AppID)
		}()
	}

	wg.Wait()

	if err := f.firstError(); err != nil {
		a.logger.WithError(err).WithField("game", g.ID).Debug("Upstream data incomplete")
	}
	return f
}

// buildGame merges the upstream results into a Game. A failed player count
// reads as zero players and failed enrichment leaves its fields nil.
func (a *Aggregator) buildGame(g catalog.TrackedGame, f *gameFetch, now time.Time) types.Game {
	game := types.Game{
		ID:         g.ID,
		AppID:      g.AppID,
		Name:       g.Name,
		LastUpdate: now,
		Sources:    []types.Source{},
	}

	if f.playersOK() {
		game.CurrentPlayers = max(f.players, 0)
		game.Sources = append(game.Sources, types.SourceSteam)
	}

	ratio := 1.0
	if f.communityOK() {
		spy := f.community
		game.Sources = append(game.Sources, types.SourceSteamSpy)
		ratio = RecentRatio(spy)

		game.PositiveReviews = intPtr(spy.Positive)
		game.NegativeReviews = intPtr(spy.Negative)
		game.AveragePlaytime = intPtr(spy.AverageForever)
		game.RecentPlaytime = intPtr(spy.Average2Weeks)
		if spy.Owners != "" {
			game.Owners = stringPtr(spy.Owners)
		}
		if tags := spy.Tags.Top(maxTags); len(tags) > 0 {
			game.Tags = tags
		}
		if genres := spy.Genres(); len(genres) > 0 {
			game.Genres = genres
		}
		if score, ok := reviewScore(spy.Positive, spy.Negative); ok {
			game.Rating = &score
		}
	}

	if f.metadataOK() {
		meta := f.metadata
		game.Sources = append(game.Sources, types.SourceSteamStore)
		if meta.ShortDescription != "" {
			game.Description = stringPtr(meta.ShortDescription)
		}
		if meta.HeaderImage != "" {
			game.HeaderImage = stringPtr(meta.HeaderImage)
		}
		// Store genres are curated and win over SteamSpy's
		if genres := meta.GenreNames(); len(genres) > 0 {
			game.Genres = genres
		}
		if price := meta.DisplayPrice(); price != "" {
			game.Price = stringPtr(price)
		}
		if game.Rating == nil && meta.Metacritic != nil && meta.Metacritic.Score > 0 {
			score := float64(meta.Metacritic.Score)
			game.Rating = &score
		}
	}

	game.Trend = TrendFromRatio(ratio)
	game.PeakPlayers24h = EstimatePeak(game.CurrentPlayers, a.cfg.PeakMultiplier)
	return game
}

// writeThrough stores the snapshot in the distributed cache. Failures are logged only.
func (a *Aggregator) writeThrough(ctx context.Context, snapshot *types.Snapshot) {
	if a.cfg.Cache == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		a.logger.WithError(err).Error("Failed to encode snapshot for cache")
		return
	}
	if err := a.cfg.Cache.Set(ctx, a.cfg.CacheKey, data, a.cfg.CacheTTL); err != nil {
		a.logger.WithError(err).Warn("Distributed cache write failed")
	}
}

// editorial returns the news and tournament lists, or nil when unavailable
func (a *Aggregator) editorial(ctx context.Context) ([]types.NewsItem, []types.Tournament) {
	if a.cfg.News == nil {
		return nil, nil
	}
	news, err := a.cfg.News.News(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load news")
		news = nil
	}
	tournaments, err := a.cfg.News.Tournaments(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load tournaments")
		tournaments = nil
	}
	if len(news) == 0 {
		news = nil
	}
	if len(tournaments) == 0 {
		tournaments = nil
	}
	return news, tournaments
}

func intPtr(v int) *int { return &v }

func stringPtr(v string) *string { return &v }
