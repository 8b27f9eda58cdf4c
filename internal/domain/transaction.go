package domain

import (
	"strings"
	"time"
)

// Transaction represents one bank-synced point-of-sale transaction.
// This is a domain struct, not a storage row; the row types in
// internal/bigquery map it to and from the transactions table.
type Transaction struct {
	ID       string
	UserID   string
	Merchant string    // pre-cleaned merchant name from bank sync
	Amount   int64     // cents; sign is direction, magnitude is what the detectors use
	Date     time.Time // calendar date, time of day ignored
	Category string
}

// Valid reports whether the transaction carries the fields every detector needs.
func (t Transaction) Valid() bool {
	return !t.Date.IsZero() && strings.TrimSpace(t.Merchant) != ""
}

// AbsAmount returns the magnitude of the amount in cents.
func (t Transaction) AbsAmount() int64 {
	if t.Amount < 0 {
		return -t.Amount
	}
	return t.Amount
}

// subscriptionCategories are category names bank sync uses for recurring billing.
var subscriptionCategories = map[string]bool{
	"subscription":        true,
	"subscriptions":       true,
	"streaming":           true,
	"memberships":         true,
	"software & services": true,
}

// IsSubscriptionCategory reports whether a category marks a charge as the
// subscription itself rather than usage of the service.
func IsSubscriptionCategory(category string) bool {
	return subscriptionCategories[strings.ToLower(strings.TrimSpace(category))]
}

// DayNumber returns the number of whole days between the Unix epoch and the
// calendar date of t. Time of day and location offsets are ignored.
func DayNumber(t time.Time) int64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.Unix() / 86400
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DayNumber(b) - DayNumber(a))
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
