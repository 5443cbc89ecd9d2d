package service

import (
	"math"

	"github.com/game-stats/internal/adapter"
	"github.com/game-stats/internal/types"
)

const (
	risingThreshold  = 1.1
	fallingThreshold = 0.9

	// DefaultPeakMultiplier scales the live player count into the 24h peak estimate
	DefaultPeakMultiplier = 1.3
)

// TrendFromRatio classifies a recent/all-time playtime ratio.
// Ratios exactly on a threshold are stable.
func TrendFromRatio(ratio float64) types.Trend {
	switch {
	case ratio > risingThreshold:
		return types.TrendRising
	case ratio < fallingThreshold:
		return types.TrendFalling
	default:
		return types.TrendStable
	}
}

// RecentRatio returns average_2weeks / average_forever, or 1 when the community
// statistics are missing or the game has no all-time playtime.
func RecentRatio(app *adapter.SteamSpyApp) float64 {
	if app == nil || app.AverageForever <= 0 {
		return 1
	}
	return float64(app.Average2Weeks) / float64(app.AverageForever)
}

// EstimatePeak derives the 24h peak estimate from the current player count.
// This is not a measured peak.
func EstimatePeak(current int, multiplier float64) int {
	if current <= 0 {
		return 0
	}
	return int(math.Floor(float64(current) * multiplier))
}

// reviewScore is the share of positive reviews as a percentage with one decimal
func reviewScore(positive, negative int) (float64, bool) {
	total := positive + negative
	if total <= 0 {
		return 0, false
	}
	return math.Round(float64(positive)/float64(total)*1000) / 10, true
}
