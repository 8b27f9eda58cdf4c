package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ErrNotFound is returned when a row addressed by ID does not exist.
var ErrNotFound = errors.New("not found")

// TransactionRepository provides access to bank-synced transactions.
type TransactionRepository interface {
	// QueryUserTransactions returns one user's transactions with
	// startDate <= transaction_date <= endDate, ordered by date.
	QueryUserTransactions(ctx context.Context, userID string, startDate, endDate time.Time) ([]*TransactionRow, error)

	// InsertTransactions inserts a batch of TransactionRow into the database.
	InsertTransactions(ctx context.Context, rows []*TransactionRow) error

	// ListActiveUserIDs returns every user with at least one transaction on or after since.
	ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)
}

// SubscriptionRepository provides access to detected subscriptions.
type SubscriptionRepository interface {
	// UpsertCandidates writes one user's detection output keyed by (user_id, merchant_key).
	// Detector columns are overwritten; status and zombie columns are preserved.
	// The write is atomic per call.
	UpsertCandidates(ctx context.Context, userID string, rows []*SubscriptionRow) error

	// ListSubscriptions returns all subscriptions for a user ordered by merchant.
	ListSubscriptions(ctx context.Context, userID string) ([]*SubscriptionRow, error)

	// ListConfirmedSubscriptions returns a user's subscriptions with status=confirmed.
	ListConfirmedSubscriptions(ctx context.Context, userID string) ([]*SubscriptionRow, error)

	// UpdateZombieScore stores the latest score without touching the flag.
	UpdateZombieScore(ctx context.Context, subscriptionID string, score float64, scoredAt time.Time) error

	// MarkZombieFlagged sets zombie_flagged_at only if it is still NULL and
	// reports whether this call performed the transition.
	MarkZombieFlagged(ctx context.Context, subscriptionID string, score float64, flaggedAt time.Time) (bool, error)

	// SetStatus records a user decision (confirm, cancel) on a subscription.
	SetStatus(ctx context.Context, subscriptionID, status string) error
}

// NudgeRepository provides access to the append-only nudge store.
type NudgeRepository interface {
	// InsertNudgeIfAbsent inserts the nudge unless a row with the same nudge_id
	// exists and reports whether a row was written.
	InsertNudgeIfAbsent(ctx context.Context, row *NudgeRow) (bool, error)

	// ListNudges returns a user's nudges, newest first.
	ListNudges(ctx context.Context, userID string) ([]*NudgeRow, error)
}

// Store is everything the service persists.
type Store interface {
	TransactionRepository
	SubscriptionRepository
	NudgeRepository
	Close() error
}

// TransactionRow represents a transaction record in BigQuery.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id" json:"transaction_id"`

	UserID    string `bigquery:"user_id" json:"user_id"`
	AccountID string `bigquery:"account_id" json:"account_id,omitempty"`

	TransactionDate civil.Date `bigquery:"transaction_date" json:"transaction_date"`

	Amount   *big.Rat `bigquery:"amount" json:"amount"`
	Currency string   `bigquery:"currency" json:"currency"`

	RawDescription string              `bigquery:"raw_description" json:"raw_description"`
	MerchantName   bigquery.NullString `bigquery:"merchant_name" json:"merchant_name,omitempty"`
	CategoryName   bigquery.NullString `bigquery:"category_name" json:"category_name,omitempty"`

	Source            string              `bigquery:"source" json:"source"`
	ExternalReference bigquery.NullString `bigquery:"external_reference" json:"external_reference,omitempty"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MarshalJSON customizes JSON serialization for TransactionRow.
func (t TransactionRow) MarshalJSON() ([]byte, error) {
	type Alias TransactionRow
	return json.Marshal(&struct {
		Amount       string  `json:"amount"`
		MerchantName *string `json:"merchant_name,omitempty"`
		CategoryName *string `json:"category_name,omitempty"`
		*Alias
	}{
		Amount: func() string {
			if t.Amount == nil {
				return "0"
			}
			return t.Amount.FloatString(2)
		}(),
		MerchantName: nullStringPtr(t.MerchantName),
		CategoryName: nullStringPtr(t.CategoryName),
		Alias:        (*Alias)(&t),
	})
}

// SubscriptionRow represents a subscription record in BigQuery.
type SubscriptionRow struct {
	SubscriptionID string `bigquery:"subscription_id" json:"subscription_id"`
	UserID         string `bigquery:"user_id" json:"user_id"`

	Merchant    string `bigquery:"merchant" json:"merchant"`
	MerchantKey string `bigquery:"merchant_key" json:"merchant_key"`

	Frequency          string  `bigquery:"frequency" json:"frequency"`
	AverageAmountCents int64   `bigquery:"average_amount_cents" json:"average_amount_cents"`
	Confidence         float64 `bigquery:"confidence" json:"confidence"`

	NextExpectedDate civil.Date `bigquery:"next_expected_date" json:"next_expected_date"`
	FirstSeenDate    civil.Date `bigquery:"first_seen_date" json:"first_seen_date"`
	LastChargeDate   civil.Date `bigquery:"last_charge_date" json:"last_charge_date"`
	ChargeCount      int64      `bigquery:"charge_count" json:"charge_count"`

	Status string `bigquery:"status" json:"status"`

	ZombieScore     bigquery.NullFloat64   `bigquery:"zombie_score" json:"-"`
	ZombieScoredTS  bigquery.NullTimestamp `bigquery:"zombie_scored_ts" json:"-"`
	ZombieFlaggedTS bigquery.NullTimestamp `bigquery:"zombie_flagged_ts" json:"-"`

	CreatedTS time.Time              `bigquery:"created_ts" json:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts" json:"-"`
}

// MarshalJSON flattens the nullable zombie columns for API responses.
func (s SubscriptionRow) MarshalJSON() ([]byte, error) {
	type Alias SubscriptionRow
	return json.Marshal(&struct {
		ZombieScore     *float64   `json:"zombie_score,omitempty"`
		ZombieFlaggedAt *time.Time `json:"zombie_flagged_at,omitempty"`
		*Alias
	}{
		ZombieScore: func() *float64 {
			if !s.ZombieScore.Valid {
				return nil
			}
			v := s.ZombieScore.Float64
			return &v
		}(),
		ZombieFlaggedAt: func() *time.Time {
			if !s.ZombieFlaggedTS.Valid {
				return nil
			}
			v := s.ZombieFlaggedTS.Timestamp
			return &v
		}(),
		Alias: (*Alias)(&s),
	})
}

// NudgeRow represents a nudge record in BigQuery.
type NudgeRow struct {
	NudgeID        string              `bigquery:"nudge_id" json:"nudge_id"`
	UserID         string              `bigquery:"user_id" json:"user_id"`
	SubscriptionID bigquery.NullString `bigquery:"subscription_id" json:"-"`

	Kind  string               `bigquery:"kind" json:"kind"`
	Title string               `bigquery:"title" json:"title"`
	Body  string               `bigquery:"body" json:"body"`
	Score bigquery.NullFloat64 `bigquery:"score" json:"-"`

	CreatedTS time.Time `bigquery:"created_ts" json:"created_ts"`
}

// MarshalJSON flattens the nullable columns for API responses.
func (n NudgeRow) MarshalJSON() ([]byte, error) {
	type Alias NudgeRow
	return json.Marshal(&struct {
		SubscriptionID *string  `json:"subscription_id,omitempty"`
		Score          *float64 `json:"score,omitempty"`
		*Alias
	}{
		SubscriptionID: nullStringPtr(n.SubscriptionID),
		Score: func() *float64 {
			if !n.Score.Valid {
				return nil
			}
			v := n.Score.Float64
			return &v
		}(),
		Alias: (*Alias)(&n),
	})
}

func nullStringPtr(ns bigquery.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.StringVal
	return &v
}

// ParseCivilDate parses a YYYY-MM-DD string.
func ParseCivilDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("ParseCivilDate: %w", err)
	}
	return d, nil
}
