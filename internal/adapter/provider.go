// Package adapter contains the clients for the upstream statistics providers.
package adapter

import (
	"context"

	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/types"
)

// PlayerCountProvider returns live concurrent player counts
type PlayerCountProvider interface {
	GetCurrentPlayers(ctx context.Context, appID int) (int, error)
}

// CommunityStatsProvider returns community statistics (reviews, playtime, owners, tags)
type CommunityStatsProvider interface {
	GetAppDetails(ctx context.Context, appID int) (*SteamSpyApp, error)
}

// MetadataProvider returns storefront metadata (description, artwork, genres, price)
type MetadataProvider interface {
	GetAppMetadata(ctx context.Context, appID int) (*StoreAppDetails, error)
}

// NewsProvider returns the editorial lists published alongside the statistics
type NewsProvider interface {
	News(ctx context.Context) ([]types.NewsItem, error)
	Tournaments(ctx context.Context) ([]types.Tournament, error)
}

// StaticNewsProvider serves the news and tournament lists built into the catalog
type StaticNewsProvider struct{}

// NewStaticNewsProvider creates a StaticNewsProvider
func NewStaticNewsProvider() *StaticNewsProvider {
	return &StaticNewsProvider{}
}

// News returns the built-in headlines
func (p *StaticNewsProvider) News(ctx context.Context) ([]types.NewsItem, error) {
	return catalog.News(), nil
}

// Tournaments returns the built-in tournament listings
func (p *StaticNewsProvider) Tournaments(ctx context.Context) ([]types.Tournament, error) {
	return catalog.Tournaments(), nil
}
