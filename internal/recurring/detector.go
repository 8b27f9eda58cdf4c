// Package recurring finds regularly repeating charges in a user's
// transaction history and turns them into subscription candidates.
package recurring

import (
	"math"
	"sort"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/merchant"
	"github.com/shopspring/decimal"
)

const (
	// DefaultLookbackMonths is how much history callers should load.
	DefaultLookbackMonths = 12

	// MinConfidence is the floor of Confidence.
	MinConfidence = 0.5
	// MaxConfidence is the ceiling of Confidence.
	MaxConfidence = 0.99
)

// Options tunes the detector. DefaultOptions returns the production values.
type Options struct {
	// Tolerance is the allowed relative deviation of each gap from the mean gap.
	Tolerance float64

	// Upper bounds (inclusive, in days) of the mean gap for each cadence.
	// Anything above QuarterlyMaxDays is yearly.
	WeeklyMaxDays    float64
	MonthlyMaxDays   float64
	QuarterlyMaxDays float64
}

// DefaultOptions returns the detector configuration used in production.
func DefaultOptions() Options {
	return Options{
		Tolerance:        0.10,
		WeeklyMaxDays:    9,
		MonthlyMaxDays:   35,
		QuarterlyMaxDays: 100,
	}
}

type group struct {
	key   string
	names []string
	txs   []domain.Transaction
}

// Detect groups transactions by normalized merchant and returns one candidate
// for every group whose charges recur at a regular interval. Transactions
// without a date or merchant are skipped. The result is sorted by merchant key
// so identical input always yields identical output.
func Detect(txs []domain.Transaction, opts Options) []domain.SubscriptionCandidate {
	groups := make(map[string]*group)
	for _, tx := range txs {
		if !tx.Valid() {
			continue
		}
		key := merchant.Normalize(tx.Merchant)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
		}
		g.names = append(g.names, tx.Merchant)
		g.txs = append(g.txs, tx)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	candidates := make([]domain.SubscriptionCandidate, 0)
	for _, k := range keys {
		if c, ok := analyzeGroup(groups[k], opts); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func analyzeGroup(g *group, opts Options) (domain.SubscriptionCandidate, bool) {
	if len(g.txs) < 2 {
		return domain.SubscriptionCandidate{}, false
	}

	sort.SliceStable(g.txs, func(i, j int) bool {
		di, dj := domain.DayNumber(g.txs[i].Date), domain.DayNumber(g.txs[j].Date)
		if di != dj {
			return di < dj
		}
		return g.txs[i].ID < g.txs[j].ID
	})

	gaps := make([]float64, 0, len(g.txs)-1)
	for i := 1; i < len(g.txs); i++ {
		gaps = append(gaps, float64(domain.DaysBetween(g.txs[i-1].Date, g.txs[i].Date)))
	}

	avgGap := mean(gaps)
	if !consistent(gaps, avgGap, opts.Tolerance) {
		return domain.SubscriptionCandidate{}, false
	}

	first := g.txs[0]
	last := g.txs[len(g.txs)-1]
	avgAmount := averageAmount(g.txs)

	return domain.SubscriptionCandidate{
		UserID:             first.UserID,
		Merchant:           merchant.Display(g.names),
		MerchantKey:        g.key,
		Frequency:          Classify(avgGap, opts),
		AverageAmountCents: avgAmount.Round(0).IntPart(),
		Confidence:         Confidence(g.txs, avgAmount),
		NextExpectedDate:   domain.DateOnly(last.Date).AddDate(0, 0, int(math.Round(avgGap))),
		FirstSeenDate:      domain.DateOnly(first.Date),
		LastChargeDate:     domain.DateOnly(last.Date),
		ChargeCount:        len(g.txs),
	}, true
}

// consistent reports whether every gap lies within tolerance*avg of avg.
// A single gap is always consistent with its own mean.
func consistent(gaps []float64, avg, tolerance float64) bool {
	band := tolerance * avg
	for _, gap := range gaps {
		if math.Abs(gap-avg) > band {
			return false
		}
	}
	return true
}

// Classify maps a mean gap in days to a cadence. Boundaries belong to the
// shorter cadence.
func Classify(avgGap float64, opts Options) domain.Frequency {
	switch {
	case avgGap <= opts.WeeklyMaxDays:
		return domain.FrequencyWeekly
	case avgGap <= opts.MonthlyMaxDays:
		return domain.FrequencyMonthly
	case avgGap <= opts.QuarterlyMaxDays:
		return domain.FrequencyQuarterly
	default:
		return domain.FrequencyYearly
	}
}

// averageAmount returns mean(|amount|) in cents.
func averageAmount(txs []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(decimal.NewFromInt(tx.AbsAmount()))
	}
	return sum.Div(decimal.NewFromInt(int64(len(txs))))
}

// Confidence scores how uniform the charge amounts are:
// clamp(1 - mean(|amount-avg|/avg), MinConfidence, MaxConfidence).
// A zero average yields MinConfidence.
func Confidence(txs []domain.Transaction, avg decimal.Decimal) float64 {
	if len(txs) == 0 || avg.IsZero() {
		return MinConfidence
	}

	total := decimal.Zero
	for _, tx := range txs {
		dev := decimal.NewFromInt(tx.AbsAmount()).Sub(avg).Abs().Div(avg)
		total = total.Add(dev)
	}
	variance, _ := total.Div(decimal.NewFromInt(int64(len(txs)))).Float64()

	return clamp(1-variance, MinConfidence, MaxConfidence)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Window returns the [start, end] dates of the lookback window ending at now.
func Window(now time.Time, months int) (time.Time, time.Time) {
	end := domain.DateOnly(now)
	return end.AddDate(0, -months, 0), end
}
