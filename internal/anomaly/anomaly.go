// Package anomaly flags individual charges that look wrong for the
// merchant they were made at.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/merchant"
	"github.com/shopspring/decimal"
)

// Kind is the type of anomaly.
type Kind string

const (
	KindUnusualAmount   Kind = "unusual_amount"
	KindDuplicateCharge Kind = "duplicate_charge"
)

// Severity ranks anomalies for display.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one flagged transaction.
type Anomaly struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Merchant      string    `json:"merchant"`
	Date          time.Time `json:"date"`
	AmountCents   int64     `json:"amount_cents"`
	Kind          Kind      `json:"kind"`
	Severity      Severity  `json:"severity"`
	Description   string    `json:"description"`

	// BaselineCents is the mean prior charge for unusual_amount.
	BaselineCents int64 `json:"baseline_cents,omitempty"`
	// ZScore is zero when the baseline has no spread.
	ZScore float64 `json:"z_score,omitempty"`
	// RelatedID is the earlier charge a duplicate repeats.
	RelatedID string `json:"related_id,omitempty"`
}

// Options tunes detection. DefaultOptions returns the production values.
type Options struct {
	// ZThreshold is the |z| an amount must exceed to be unusual.
	ZThreshold float64
	// MinHistory is the number of prior charges required before judging.
	MinHistory int
	// FlatDeviation is the relative deviation that flags an amount when
	// every prior charge was identical.
	FlatDeviation float64
}

// DefaultOptions returns the detection thresholds used in production.
func DefaultOptions() Options {
	return Options{ZThreshold: 2.5, MinHistory: 4, FlatDeviation: 0.5}
}

// Detect returns unusual amounts and duplicate charges, sorted by date then
// transaction ID. Malformed and zero-amount transactions are ignored.
func Detect(txs []domain.Transaction, opts Options) []Anomaly {
	groups := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		if !tx.Valid() || tx.Amount == 0 {
			continue
		}
		key := merchant.Normalize(tx.Merchant)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tx)
	}

	out := make([]Anomaly, 0)
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			di, dj := domain.DayNumber(group[i].Date), domain.DayNumber(group[j].Date)
			if di != dj {
				return di < dj
			}
			return group[i].ID < group[j].ID
		})
		out = append(out, unusualAmounts(group, opts)...)
		out = append(out, duplicates(group)...)
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := domain.DayNumber(out[i].Date), domain.DayNumber(out[j].Date)
		if di != dj {
			return di < dj
		}
		if out[i].TransactionID != out[j].TransactionID {
			return out[i].TransactionID < out[j].TransactionID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// unusualAmounts compares each charge with the charges before it.
// group must be sorted by date.
func unusualAmounts(group []domain.Transaction, opts Options) []Anomaly {
	var out []Anomaly
	for i := opts.MinHistory; i < len(group); i++ {
		prior := group[:i]
		mean, std := stats(prior)
		if mean <= 0 {
			continue
		}

		tx := group[i]
		amount := float64(tx.AbsAmount())
		a := Anomaly{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Merchant:      tx.Merchant,
			Date:          domain.DateOnly(tx.Date),
			AmountCents:   tx.Amount,
			Kind:          KindUnusualAmount,
			BaselineCents: int64(math.Round(mean)),
		}

		if std == 0 {
			deviation := math.Abs(amount-mean) / mean
			if deviation <= opts.FlatDeviation {
				continue
			}
			a.Severity = severityForDeviation(deviation)
			a.Description = fmt.Sprintf("%s charged %s, usually exactly %s",
				tx.Merchant, formatCents(tx.AbsAmount()), formatCents(a.BaselineCents))
			out = append(out, a)
			continue
		}

		z := (amount - mean) / std
		if math.Abs(z) <= opts.ZThreshold {
			continue
		}
		a.ZScore = z
		a.Severity = severityForZ(z)
		a.Description = fmt.Sprintf("%s charged %s, usually around %s",
			tx.Merchant, formatCents(tx.AbsAmount()), formatCents(a.BaselineCents))
		out = append(out, a)
	}
	return out
}

// duplicates flags charges with the same amount on the same day as an
// earlier charge. group must be sorted by date then ID.
func duplicates(group []domain.Transaction) []Anomaly {
	type dayAmount struct {
		day    int64
		amount int64
	}
	first := make(map[dayAmount]domain.Transaction)

	var out []Anomaly
	for _, tx := range group {
		k := dayAmount{day: domain.DayNumber(tx.Date), amount: tx.AbsAmount()}
		orig, seen := first[k]
		if !seen {
			first[k] = tx
			continue
		}
		if orig.ID == tx.ID {
			continue
		}
		out = append(out, Anomaly{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			Merchant:      tx.Merchant,
			Date:          domain.DateOnly(tx.Date),
			AmountCents:   tx.Amount,
			Kind:          KindDuplicateCharge,
			Severity:      SeverityMedium,
			Description:   fmt.Sprintf("%s charged %s twice on the same day", tx.Merchant, formatCents(tx.AbsAmount())),
			RelatedID:     orig.ID,
		})
	}
	return out
}

// stats returns the mean and population standard deviation of |amount|.
func stats(txs []domain.Transaction) (float64, float64) {
	if len(txs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, tx := range txs {
		sum += float64(tx.AbsAmount())
	}
	mean := sum / float64(len(txs))

	var sq float64
	for _, tx := range txs {
		d := float64(tx.AbsAmount()) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(txs)))
}

func severityForZ(z float64) Severity {
	switch az := math.Abs(z); {
	case az >= 5:
		return SeverityHigh
	case az >= 3.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func severityForDeviation(d float64) Severity {
	switch {
	case d >= 2:
		return SeverityHigh
	case d >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func formatCents(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
