// Package catalog holds the static catalogs the aggregator works from: the tracked games,
// the region market-share weights, and the editorial news and tournament listings.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/game-stats/internal/types"
)

// TrackedGame is a pre-registered title. The ID is the stable key used everywhere else.
type TrackedGame struct {
	ID    string
	AppID int
	Name  string
}

// Region is a geographic market with an assumed share of the global player base.
// Weights are fixed estimates, not measured telemetry.
type Region struct {
	Code   string
	Name   string
	Weight float64 // fraction of global players, 0-1
}

var defaultGames = []TrackedGame{
	{ID: "cs2", AppID: 730, Name: "Counter-Strike 2"},
	{ID: "dota2", AppID: 570, Name: "Dota 2"},
	{ID: "pubg", AppID: 578080, Name: "PUBG: BATTLEGROUNDS"},
	{ID: "apex", AppID: 1172470, Name: "Apex Legends"},
	{ID: "rust", AppID: 252490, Name: "Rust"},
	{ID: "gta5", AppID: 271590, Name: "Grand Theft Auto V"},
	{ID: "tf2", AppID: 440, Name: "Team Fortress 2"},
	{ID: "bg3", AppID: 1086940, Name: "Baldur's Gate 3"},
	{ID: "warframe", AppID: 230410, Name: "Warframe"},
	{ID: "naraka", AppID: 1203220, Name: "NARAKA: BLADEPOINT"},
}

var defaultRegions = []Region{
	{Code: "US", Name: "United States", Weight: 0.18},
	{Code: "CN", Name: "China", Weight: 0.15},
	{Code: "RU", Name: "Russia", Weight: 0.09},
	{Code: "DE", Name: "Germany", Weight: 0.07},
	{Code: "BR", Name: "Brazil", Weight: 0.06},
	{Code: "GB", Name: "United Kingdom", Weight: 0.05},
	{Code: "FR", Name: "France", Weight: 0.05},
	{Code: "CA", Name: "Canada", Weight: 0.04},
	{Code: "KR", Name: "South Korea", Weight: 0.04},
	{Code: "PL", Name: "Poland", Weight: 0.03},
	{Code: "TR", Name: "Turkey", Weight: 0.03},
	{Code: "JP", Name: "Japan", Weight: 0.03},
	{Code: "AU", Name: "Australia", Weight: 0.02},
	{Code: "UA", Name: "Ukraine", Weight: 0.02},
	{Code: "SE", Name: "Sweden", Weight: 0.02},
}

// Catalog is an immutable set of tracked games and regions
type Catalog struct {
	games   []TrackedGame
	regions []Region
}

// New builds a catalog, rejecting duplicate keys and out-of-range weights
func New(games []TrackedGame, regions []Region) (*Catalog, error) {
	seen := make(map[string]bool, len(games))
	for _, g := range games {
		if g.ID == "" || g.AppID <= 0 {
			return nil, fmt.Errorf("invalid tracked game %q (app %d)", g.ID, g.AppID)
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("duplicate tracked game %q", g.ID)
		}
		seen[g.ID] = true
	}

	total := 0.0
	codes := make(map[string]bool, len(regions))
	for _, r := range regions {
		if r.Weight < 0 || r.Weight > 1 {
			return nil, fmt.Errorf("region %s weight %.3f out of range", r.Code, r.Weight)
		}
		code := strings.ToUpper(r.Code)
		if codes[code] {
			return nil, fmt.Errorf("duplicate region %q", r.Code)
		}
		codes[code] = true
		total += r.Weight
	}
	if total > 1.0001 {
		return nil, fmt.Errorf("region weights sum to %.3f, must not exceed 1", total)
	}

	c := &Catalog{
		games:   append([]TrackedGame(nil), games...),
		regions: make([]Region, len(regions)),
	}
	for i, r := range regions {
		r.Code = strings.ToUpper(r.Code)
		c.regions[i] = r
	}
	return c, nil
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(defaultGames, defaultRegions)
	if err != nil {
		panic(err)
	}
	return c
}

// Games returns a copy of the tracked games
func (c *Catalog) Games() []TrackedGame {
	return append([]TrackedGame(nil), c.games...)
}

// Regions returns a copy of the regions, ordered by descending weight
func (c *Catalog) Regions() []Region {
	out := append([]Region(nil), c.regions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// Game looks up a tracked game by ID
func (c *Catalog) Game(id string) (TrackedGame, bool) {
	for _, g := range c.games {
		if g.ID == id {
			return g, true
		}
	}
	return TrackedGame{}, false
}

// Filter returns a catalog restricted to the given game IDs. Unknown IDs are ignored;
// an empty list keeps every game.
func (c *Catalog) Filter(ids []string) *Catalog {
	if len(ids) == 0 {
		return c
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[strings.TrimSpace(id)] = true
	}
	filtered := &Catalog{regions: c.regions}
	for _, g := range c.games {
		if keep[g.ID] {
			filtered.games = append(filtered.games, g)
		}
	}
	return filtered
}

// News returns the editorial headlines shipped with the service
func News() []types.NewsItem {
	return []types.NewsItem{
		{
			ID:          "news-cs2-major",
			Title:       "Counter-Strike 2 Major qualifiers wrap up",
			Summary:     "Sixteen teams locked in for the main stage after a week of upsets.",
			GameID:      "cs2",
			PublishedAt: time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:          "news-dota2-patch",
			Title:       "Dota 2 gameplay patch reshapes the jungle",
			Summary:     "Neutral camp timings and rewards were reworked in the latest update.",
			GameID:      "dota2",
			PublishedAt: time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:          "news-rust-wipe",
			Title:       "Rust monthly wipe brings new monument",
			Summary:     "Forced wipe day adds a coastal monument and electricity tweaks.",
			GameID:      "rust",
			PublishedAt: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

// Tournaments returns the esports events shipped with the service
func Tournaments() []types.Tournament {
	return []types.Tournament{
		{
			ID:        "t-cs2-major",
			Name:      "CS2 Major Championship",
			GameID:    "cs2",
			PrizePool: "$1,250,000",
			Location:  "Budapest, HU",
			StartDate: time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 12, 6, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "t-ti",
			Name:      "The International",
			GameID:    "dota2",
			PrizePool: "$2,500,000",
			Location:  "Seattle, US",
			StartDate: time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			ID:        "t-algs",
			Name:      "ALGS Championship",
			GameID:    "apex",
			PrizePool: "$2,000,000",
			Location:  "Sapporo, JP",
			StartDate: time.Date(2027, 1, 29, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}
