package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the classified recurrence period of a detected charge.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// ParseFrequency converts a stored string back into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

var (
	weeksPerMonth = decimal.NewFromInt(52).Div(decimal.NewFromInt(12))
	three         = decimal.NewFromInt(3)
	twelve        = decimal.NewFromInt(12)
)

// MonthlyEquivalent converts a per-charge amount into its monthly cost.
func (f Frequency) MonthlyEquivalent(amount decimal.Decimal) decimal.Decimal {
	switch f {
	case FrequencyWeekly:
		return amount.Mul(weeksPerMonth)
	case FrequencyQuarterly:
		return amount.Div(three)
	case FrequencyYearly:
		return amount.Div(twelve)
	default:
		return amount
	}
}

// SubscriptionStatus tracks what the user has done with a detected charge.
type SubscriptionStatus string

const (
	// StatusDetected is a candidate the user has not reviewed yet.
	StatusDetected SubscriptionStatus = "detected"
	// StatusConfirmed is a subscription the user acknowledged as theirs.
	StatusConfirmed SubscriptionStatus = "confirmed"
	// StatusCancelled is recorded when the user cancels outside this service.
	StatusCancelled SubscriptionStatus = "cancelled"
)

// SubscriptionCandidate is the output of one detection run for one merchant.
// It is recomputed on every run and replaces the previous candidate wholesale.
type SubscriptionCandidate struct {
	UserID      string
	Merchant    string // display name, most common raw spelling in the group
	MerchantKey string // normalized grouping key

	Frequency          Frequency
	AverageAmountCents int64
	Confidence         float64

	NextExpectedDate time.Time
	FirstSeenDate    time.Time
	LastChargeDate   time.Time
	ChargeCount      int
}

// AverageAmount returns the average charge in currency units.
func (c SubscriptionCandidate) AverageAmount() decimal.Decimal {
	return decimal.New(c.AverageAmountCents, -2)
}

// Subscription is a persisted candidate together with the state this
// service and the user attach to it.
type Subscription struct {
	SubscriptionID string
	SubscriptionCandidate

	Status      SubscriptionStatus
	ZombieScore *float64
	Zombie      ZombieFlag

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyAmount returns the monthly-equivalent cost in currency units.
func (s Subscription) MonthlyAmount() decimal.Decimal {
	return s.Frequency.MonthlyEquivalent(s.AverageAmount())
}
