// Package scoring implements the credit scorecard and risk grade classifier.
//
// The scorecard is a transparent additive point system: each category is a
// monotonic, piecewise-linear function of one or more features, saturating at
// a documented cap. This is deliberately an auditable scorecard rather than a
// learned model; given the same feature vector it always produces the same
// breakdown.
package scoring

import (
	"math"

	"github.com/chainscore-io/chainscore/internal/features"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 1000
)

// Category caps. The failed-transaction penalty is a floor (most negative
// value the category can contribute).
const (
	CapAccountAge     = 200
	CapActivity       = 200
	CapVolume         = 200
	CapDiversity      = 150
	CapContract       = 100
	CapRecency        = 50
	CapConsistency    = 100
	FloorFailsPenalty = -100
)

// Category names as they appear in a Breakdown.
const (
	CategoryAccountAge  = "account_age"
	CategoryActivity    = "transaction_activity"
	CategoryVolume      = "eth_volume"
	CategoryDiversity   = "counterparty_diversity"
	CategoryContract    = "contract_interactions"
	CategoryRecency     = "recent_activity"
	CategoryConsistency = "activity_consistency"
	CategoryPenalty     = "failed_tx_penalty"
	CategoryCardBonus   = "card_bonus"
)

// Breakdown is the per-category point award plus the clamped total.
type Breakdown struct {
	Categories map[string]float64 `json:"categories"`
	Total      float64            `json:"total"`
}

// Scorecard converts feature vectors into score breakdowns.
type Scorecard struct{}

// NewScorecard creates a scorecard with the standard category functions.
func NewScorecard() *Scorecard {
	return &Scorecard{}
}

// Score computes the breakdown for v. bonus is an optional externally
// sourced card-info bonus added before the final clamp; pass 0 when absent.
func (s *Scorecard) Score(v features.Vector, bonus float64) Breakdown {
	cats := map[string]float64{
		CategoryAccountAge:  accountAgePoints(v["account_age_days"]),
		CategoryActivity:    activityPoints(v["total_transactions"], v["avg_tx_per_month"]),
		CategoryVolume:      volumePoints(v["total_eth_sent"], v["total_eth_received"]),
		CategoryDiversity:   diversityPoints(v["unique_counterparties"]),
		CategoryContract:    contractPoints(v["contract_interaction_ratio"]),
		CategoryRecency:     recencyPoints(v["days_since_last_tx"]),
		CategoryConsistency: consistencyPoints(v["activity_consistency"]),
		CategoryPenalty:     failurePenalty(v["failed_tx_ratio"], v["max_failed_tx_streak"]),
	}

	total := 0.0
	for name, pts := range cats {
		pts = round2(pts)
		cats[name] = pts
		total += pts
	}

	if bonus > 0 {
		bonus = round2(bonus)
		cats[CategoryCardBonus] = bonus
		total += bonus
	}

	total = math.Max(MinScore, math.Min(MaxScore, total))
	return Breakdown{Categories: cats, Total: round2(total)}
}

// accountAgePoints rewards time on chain, saturating at four years.
func accountAgePoints(ageDays float64) float64 {
	return interp(ageDays,
		[]float64{0, 30, 180, 365, 730, 1460},
		[]float64{0, 20, 60, 100, 150, 200})
}

// activityPoints blends lifetime transaction count with the monthly rate.
func activityPoints(totalTx, perMonth float64) float64 {
	count := interp(totalTx,
		[]float64{0, 10, 50, 200, 500},
		[]float64{0, 30, 80, 150, 200})
	rate := interp(perMonth,
		[]float64{0, 1, 5, 20},
		[]float64{0, 40, 120, 200})
	return 0.6*count + 0.4*rate
}

// volumePoints rewards sent and received ETH equally, saturating at 100 ETH
// on each side.
func volumePoints(sent, received float64) float64 {
	curve := func(v float64) float64 {
		return interp(v,
			[]float64{0, 0.1, 1, 10, 100},
			[]float64{0, 20, 80, 150, 200})
	}
	return 0.5*curve(sent) + 0.5*curve(received)
}

func diversityPoints(unique float64) float64 {
	return interp(unique,
		[]float64{0, 2, 5, 20, 50, 100},
		[]float64{0, 20, 50, 95, 130, 150})
}

func contractPoints(ratio float64) float64 {
	return interp(ratio,
		[]float64{0, 0.05, 0.2, 0.5},
		[]float64{0, 25, 70, 100})
}

// recencyPoints decays with days since the last transaction. The -1
// sentinel (no transactions) scores 0.
func recencyPoints(days float64) float64 {
	if days < 0 {
		return 0
	}
	return interp(days,
		[]float64{0, 7, 30, 90, 180},
		[]float64{50, 50, 35, 15, 0})
}

func consistencyPoints(c float64) float64 {
	return interp(c,
		[]float64{0, 0.5, 1},
		[]float64{0, 55, 100})
}

// failurePenalty returns a non-positive penalty, floored at -100. More
// failures or longer failure streaks never raise the score.
func failurePenalty(failedRatio, maxStreak float64) float64 {
	ratioPart := interp(failedRatio,
		[]float64{0, 0.05, 0.25, 0.5},
		[]float64{0, 10, 35, 60})
	streakPart := interp(maxStreak,
		[]float64{0, 1, 3, 5},
		[]float64{0, 10, 25, 40})
	return -math.Min(100, ratioPart+streakPart)
}

// interp linearly interpolates x over breakpoints xs -> ys, clamping at both
// ends. xs must be strictly increasing and the same length as ys.
func interp(x float64, xs, ys []float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	for i := 1; i <= last; i++ {
		if x < xs[i] {
			frac := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + frac*(ys[i]-ys[i-1])
		}
	}
	return ys[last]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
