// Package zombie scores confirmed subscriptions for signs that the user no
// longer uses the service, and decides when to flag them.
package zombie

import (
	"math"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/merchant"
)

const (
	// Threshold is the score a subscription must exceed to be flagged.
	Threshold = 70.0

	// MaxIdleDays caps and defaults DaysSinceLastUsage.
	MaxIdleDays = 90

	// UsageWindowDays is the trailing window UsageCount is counted over.
	UsageWindowDays = 30

	timeWeight       = 40.0
	usageWeight      = 30.0
	usagePerCharge   = 6.0
	costWeight       = 20.0
	costReference    = 50.0
	confidenceWeight = 10.0
	maxScore         = 100.0
)

// Inputs are the facts the score is computed from.
type Inputs struct {
	DaysSinceLastUsage int
	UsageCount         int
	MonthlyAmount      float64 // currency units
	Confidence         float64
}

// Score combines idle time, usage frequency, cost and detector confidence
// into a 0-100 urgency score. Inputs are clamped to their valid ranges first.
func Score(in Inputs) float64 {
	days := clamp(float64(in.DaysSinceLastUsage), 0, MaxIdleDays)
	usage := math.Max(float64(in.UsageCount), 0)
	amount := math.Max(in.MonthlyAmount, 0)
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	confidence := clamp(in.Confidence, 0, 1)

	timeScore := math.Min(days/MaxIdleDays*timeWeight, timeWeight)
	usageScore := math.Max(usageWeight-usage*usagePerCharge, 0)
	costScore := math.Min(amount/costReference*costWeight, costWeight)
	confidenceBonus := confidence * confidenceWeight

	return math.Min(timeScore+usageScore+costScore+confidenceBonus, maxScore)
}

// InputsFor builds score inputs for a subscription from recent transactions.
// Usage is any transaction at the same merchant key that is not itself
// categorized as a subscription charge.
func InputsFor(sub domain.Subscription, txs []domain.Transaction, now time.Time) Inputs {
	days, count := Usage(sub.MerchantKey, txs, now)
	amount, _ := sub.MonthlyAmount().Float64()
	return Inputs{
		DaysSinceLastUsage: days,
		UsageCount:         count,
		MonthlyAmount:      amount,
		Confidence:         sub.Confidence,
	}
}

// Usage returns the days since the most recent usage transaction (MaxIdleDays
// when none is found) and the number of usage transactions in the trailing
// UsageWindowDays.
func Usage(merchantKey string, txs []domain.Transaction, now time.Time) (int, int) {
	lastUsage := -1
	count := 0
	for _, tx := range txs {
		if !tx.Valid() || domain.IsSubscriptionCategory(tx.Category) {
			continue
		}
		if merchantKey == "" || merchant.Normalize(tx.Merchant) != merchantKey {
			continue
		}
		ago := domain.DaysBetween(tx.Date, now)
		if ago < 0 {
			continue
		}
		if lastUsage < 0 || ago < lastUsage {
			lastUsage = ago
		}
		if ago <= UsageWindowDays {
			count++
		}
	}

	if lastUsage < 0 || lastUsage > MaxIdleDays {
		return MaxIdleDays, count
	}
	return lastUsage, count
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
