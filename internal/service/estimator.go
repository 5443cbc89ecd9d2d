package service

import (
	"math"
	"time"

	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/types"
)

// RegionEstimator apportions the observed global player base across regions
type RegionEstimator interface {
	Estimate(games []types.Game, at time.Time) []types.CountryDistribution
}

// StaticRegionEstimator uses the fixed market-share weights of the region catalog.
// The numbers it produces are modelled, not measured.
type StaticRegionEstimator struct {
	regions []catalog.Region
}

// NewStaticRegionEstimator creates an estimator over the given regions
func NewStaticRegionEstimator(regions []catalog.Region) *StaticRegionEstimator {
	return &StaticRegionEstimator{regions: append([]catalog.Region(nil), regions...)}
}

// Estimate returns one distribution per region. A game whose share in a region
// rounds down to zero is left out of that region's breakdown.
func (e *StaticRegionEstimator) Estimate(games []types.Game, at time.Time) []types.CountryDistribution {
	total := 0
	for _, g := range games {
		total += g.CurrentPlayers
	}

	out := make([]types.CountryDistribution, 0, len(e.regions))
	for _, region := range e.regions {
		dist := types.CountryDistribution{
			Code:         region.Code,
			Name:         region.Name,
			TotalPlayers: apportion(total, region.Weight),
			Games:        make(map[string]types.RegionalGameStat),
			LastUpdate:   at,
		}
		for _, g := range games {
			players := apportion(g.CurrentPlayers, region.Weight)
			if players == 0 {
				continue
			}
			dist.Games[g.ID] = types.RegionalGameStat{
				PlayerCount: players,
				PlayRate:    playRate(players, dist.TotalPlayers),
			}
		}
		out = append(out, dist)
	}
	return out
}

func apportion(players int, weight float64) int {
	if players <= 0 || weight <= 0 {
		return 0
	}
	return int(math.Floor(float64(players) * weight))
}

func playRate(players, regionTotal int) float64 {
	if regionTotal <= 0 {
		return 0
	}
	rate := float64(players) / float64(regionTotal) * 100
	return math.Max(0, math.Min(100, rate))
}
