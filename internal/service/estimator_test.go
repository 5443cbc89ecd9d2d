package service

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/types"
)

func TestStaticRegionEstimator_Apportionment(t *testing.T) {
	estimator := NewStaticRegionEstimator([]catalog.Region{
		{Code: "R1", Name: "Region One", Weight: 0.6},
		{Code: "R2", Name: "Region Two", Weight: 0.4},
	})
	games := []types.Game{
		{ID: "b", CurrentPlayers: 3000},
		{ID: "a", CurrentPlayers: 1000},
	}

	countries := estimator.Estimate(games, testStart)
	require.Len(t, countries, 2)

	r1 := countries[0]
	assert.Equal(t, "R1", r1.Code)
	assert.Equal(t, 2400, r1.TotalPlayers)
	assert.Equal(t, types.RegionalGameStat{PlayerCount: 600, PlayRate: 25}, r1.Games["a"])
	assert.Equal(t, types.RegionalGameStat{PlayerCount: 1800, PlayRate: 75}, r1.Games["b"])
	assert.Equal(t, testStart, r1.LastUpdate)

	r2 := countries[1]
	assert.Equal(t, 1600, r2.TotalPlayers)
	assert.Equal(t, 400, r2.Games["a"].PlayerCount)
	assert.Equal(t, 1200, r2.Games["b"].PlayerCount)
}

func TestStaticRegionEstimator_OmitsZeroShares(t *testing.T) {
	estimator := NewStaticRegionEstimator([]catalog.Region{{Code: "XS", Name: "Tiny", Weight: 0.01}})

	countries := estimator.Estimate([]types.Game{
		{ID: "big", CurrentPlayers: 10000},
		{ID: "small", CurrentPlayers: 50},
		{ID: "none", CurrentPlayers: 0},
	}, testStart)

	require.Len(t, countries, 1)
	assert.Contains(t, countries[0].Games, "big")
	assert.NotContains(t, countries[0].Games, "small")
	assert.NotContains(t, countries[0].Games, "none")
}

func TestStaticRegionEstimator_NoPlayers(t *testing.T) {
	estimator := NewStaticRegionEstimator(catalog.Default().Regions())

	countries := estimator.Estimate([]types.Game{{ID: "a"}, {ID: "b"}}, testStart)
	for _, c := range countries {
		assert.Zero(t, c.TotalPlayers)
		assert.Empty(t, c.Games)
		assert.NotNil(t, c.Games)
	}
}

func TestStaticRegionEstimatorProperties(t *testing.T) {
	estimator := NewStaticRegionEstimator(catalog.Default().Regions())
	properties := gopter.NewProperties(nil)

	properties.Property("regional totals never exceed the global total", prop.ForAll(
		func(a, b, c int) bool {
			games := []types.Game{
				{ID: "a", CurrentPlayers: a},
				{ID: "b", CurrentPlayers: b},
				{ID: "c", CurrentPlayers: c},
			}
			sum := 0
			for _, country := range estimator.Estimate(games, testStart) {
				sum += country.TotalPlayers
			}
			return sum <= a+b+c
		},
		gen.IntRange(0, 2000000),
		gen.IntRange(0, 2000000),
		gen.IntRange(0, 2000000),
	))

	properties.Property("per-game regional counts never exceed the game's players", prop.ForAll(
		func(a, b int) bool {
			games := []types.Game{
				{ID: "a", CurrentPlayers: a},
				{ID: "b", CurrentPlayers: b},
			}
			perGame := map[string]int{}
			for _, country := range estimator.Estimate(games, testStart) {
				for id, stat := range country.Games {
					if stat.PlayerCount <= 0 || stat.PlayRate < 0 || stat.PlayRate > 100 {
						return false
					}
					perGame[id] += stat.PlayerCount
				}
			}
			return perGame["a"] <= a && perGame["b"] <= b
		},
		gen.IntRange(0, 2000000),
		gen.IntRange(0, 2000000),
	))

	properties.TestingRun(t)
}
