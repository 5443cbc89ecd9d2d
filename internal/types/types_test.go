package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	return &Snapshot{
		Games: []Game{
			{ID: "cs2", AppID: 730, Name: "Counter-Strike 2", CurrentPlayers: 3000, Trend: TrendStable, LastUpdate: now},
			{ID: "dota2", AppID: 570, Name: "Dota 2", CurrentPlayers: 1000, Trend: TrendRising, LastUpdate: now},
		},
		Countries: []CountryDistribution{
			{Code: "US", Name: "United States", TotalPlayers: 2400, LastUpdate: now},
		},
		GlobalStats: GlobalStats{TotalPlayers: 4000, ActiveGames: 2, LastUpdate: now},
	}
}

func TestSnapshot_FindGame(t *testing.T) {
	snap := testSnapshot()

	game, ok := snap.FindGame("dota2")
	require.True(t, ok)
	assert.Equal(t, 570, game.AppID)

	_, ok = snap.FindGame("missing")
	assert.False(t, ok)
}

func TestSnapshot_FindCountry(t *testing.T) {
	snap := testSnapshot()

	country, ok := snap.FindCountry("US")
	require.True(t, ok)
	assert.Equal(t, 2400, country.TotalPlayers)

	_, ok = snap.FindCountry("ZZ")
	assert.False(t, ok)
}

func TestGame_OmitsMissingEnrichment(t *testing.T) {
	game := Game{ID: "cs2", AppID: 730, Name: "Counter-Strike 2", Trend: TrendStable}

	data, err := json.Marshal(game)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.NotContains(t, fields, "description")
	assert.NotContains(t, fields, "rating")
	assert.NotContains(t, fields, "owners")
	assert.Equal(t, "stable", fields["trend"])
}

func TestSummarizeGames(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	games := []Game{
		{ID: "a", CurrentPlayers: 3000},
		{ID: "b", CurrentPlayers: 1000},
		{ID: "c", CurrentPlayers: 0},
	}

	stats := SummarizeGames(games, at)

	assert.Equal(t, 4000, stats.TotalPlayers)
	assert.Equal(t, 2, stats.ActiveGames)
	assert.Equal(t, at, stats.LastUpdate)
}
