// Package types provides common type definitions for the game stats service.
package types

import "time"

// Trend represents the direction of a game's recent engagement
type Trend string

const (
	// TrendRising means recent playtime is well above the all-time average
	TrendRising Trend = "rising"
	// TrendFalling means recent playtime is well below the all-time average
	TrendFalling Trend = "falling"
	// TrendStable means recent playtime is close to the all-time average
	TrendStable Trend = "stable"
)

// Source identifies an upstream statistics provider
type Source string

const (
	// SourceSteam is the Steam Web API (concurrent player counts)
	SourceSteam Source = "steam"
	// SourceSteamSpy is the SteamSpy community statistics API
	SourceSteamSpy Source = "steamspy"
	// SourceSteamStore is the Steam storefront metadata API
	SourceSteamStore Source = "steam_store"
)

// Game is the per-title entry of a snapshot.
//
// PeakPlayers24h is an estimate derived from CurrentPlayers, not a measured peak.
// Enrichment fields are nil when their provider was unavailable.
type Game struct {
	ID              string    `json:"id"`
	AppID           int       `json:"appId"`
	Name            string    `json:"name"`
	CurrentPlayers  int       `json:"currentPlayers"`
	PeakPlayers24h  int       `json:"peakPlayers24h"`
	Trend           Trend     `json:"trend"`
	LastUpdate      time.Time `json:"lastUpdate"`
	Sources         []Source  `json:"sources"`
	Description     *string   `json:"description,omitempty"`
	HeaderImage     *string   `json:"headerImage,omitempty"`
	Rating          *float64  `json:"rating,omitempty"`
	Genres          []string  `json:"genres,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	PositiveReviews *int      `json:"positiveReviews,omitempty"`
	NegativeReviews *int      `json:"negativeReviews,omitempty"`
	AveragePlaytime *int      `json:"averagePlaytime,omitempty"`
	RecentPlaytime  *int      `json:"recentPlaytime,omitempty"`
	Price           *string   `json:"price,omitempty"`
	Owners          *string   `json:"owners,omitempty"`
}

// RegionalGameStat is one game's estimated share within a region
type RegionalGameStat struct {
	PlayerCount int     `json:"playerCount"`
	PlayRate    float64 `json:"playRate"` // percent of the region total, 0-100
}

// CountryDistribution is the estimated player breakdown for one region
type CountryDistribution struct {
	Code         string                      `json:"code"`
	Name         string                      `json:"name"`
	TotalPlayers int                         `json:"totalPlayers"`
	Games        map[string]RegionalGameStat `json:"games"`
	LastUpdate   time.Time                   `json:"lastUpdate"`
}

// GlobalStats summarizes a snapshot
type GlobalStats struct {
	TotalPlayers int       `json:"totalPlayers"`
	ActiveGames  int       `json:"activeGames"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// SummarizeGames computes the global statistics for a set of games.
// A game counts as active when it reports at least one player.
func SummarizeGames(games []Game, at time.Time) GlobalStats {
	stats := GlobalStats{LastUpdate: at}
	for _, g := range games {
		stats.TotalPlayers += g.CurrentPlayers
		if g.CurrentPlayers > 0 {
			stats.ActiveGames++
		}
	}
	return stats
}

// NewsItem is a static news headline shown alongside the statistics
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	GameID      string    `json:"gameId,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Tournament is a static esports event listing
type Tournament struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GameID    string    `json:"gameId"`
	PrizePool string    `json:"prizePool"`
	Location  string    `json:"location"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Snapshot is the complete aggregated view produced by one refresh cycle.
// A snapshot is never modified after it is published.
type Snapshot struct {
	Games       []Game                `json:"games"`
	Countries   []CountryDistribution `json:"countries"`
	GlobalStats GlobalStats           `json:"globalStats"`
	News        []NewsItem            `json:"news,omitempty"`
	Tournaments []Tournament          `json:"tournaments,omitempty"`
}

// FindGame returns the game with the given identifier
func (s *Snapshot) FindGame(id string) (*Game, bool) {
	for i := range s.Games {
		if s.Games[i].ID == id {
			return &s.Games[i], true
		}
	}
	return nil, false
}

// FindCountry returns the distribution for the given region code
func (s *Snapshot) FindCountry(code string) (*CountryDistribution, bool) {
	for i := range s.Countries {
		if s.Countries[i].Code == code {
			return &s.Countries[i], true
		}
	}
	return nil, false
}

// HistoryPoint is one recorded player count sample
type HistoryPoint struct {
	GameID      string    `json:"gameId"`
	PlayerCount int       `json:"playerCount"`
	RecordedAt  time.Time `json:"recordedAt"`
}
