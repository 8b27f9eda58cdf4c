package bigquery

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/saveplus/saveplus/internal/domain"
	"github.com/shopspring/decimal"
)

// ToDomain converts a stored transaction into the detector's view of it.
// Rows without a valid date or amount are reported as not ok and must be
// skipped by the caller.
func (t *TransactionRow) ToDomain() (domain.Transaction, bool) {
	if t == nil || !t.TransactionDate.IsValid() || t.Amount == nil {
		return domain.Transaction{}, false
	}

	cents, err := decimal.NewFromString(t.Amount.FloatString(2))
	if err != nil {
		return domain.Transaction{}, false
	}

	merchantName := strings.TrimSpace(t.MerchantName.StringVal)
	if !t.MerchantName.Valid || merchantName == "" {
		merchantName = strings.TrimSpace(t.RawDescription)
	}

	return domain.Transaction{
		ID:       t.TransactionID,
		UserID:   t.UserID,
		Merchant: merchantName,
		Amount:   cents.Shift(2).IntPart(),
		Date:     t.TransactionDate.In(time.UTC),
		Category: t.CategoryName.StringVal,
	}, true
}

// TransactionsToDomain converts rows and drops the ones ToDomain rejects.
func TransactionsToDomain(rows []*TransactionRow) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		if tx, ok := r.ToDomain(); ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

// NewTransactionRow builds a row for a transaction received from bank sync.
func NewTransactionRow(tx domain.Transaction, currency, source string, created time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		TransactionDate: civil.DateOf(tx.Date),
		Amount:          big.NewRat(tx.Amount, 100),
		Currency:        currency,
		RawDescription:  tx.Merchant,
		MerchantName:    bigquery.NullString{StringVal: tx.Merchant, Valid: tx.Merchant != ""},
		CategoryName:    bigquery.NullString{StringVal: tx.Category, Valid: tx.Category != ""},
		Source:          source,
		CreatedTS:       created,
	}
	return row
}

// NewSubscriptionRow maps a detector candidate onto the subscriptions table.
// Status and zombie columns are left for the store to preserve.
func NewSubscriptionRow(c domain.SubscriptionCandidate, now time.Time) *SubscriptionRow {
	return &SubscriptionRow{
		SubscriptionID:     domain.SubscriptionID(c.UserID, c.MerchantKey),
		UserID:             c.UserID,
		Merchant:           c.Merchant,
		MerchantKey:        c.MerchantKey,
		Frequency:          string(c.Frequency),
		AverageAmountCents: c.AverageAmountCents,
		Confidence:         c.Confidence,
		NextExpectedDate:   civil.DateOf(c.NextExpectedDate),
		FirstSeenDate:      civil.DateOf(c.FirstSeenDate),
		LastChargeDate:     civil.DateOf(c.LastChargeDate),
		ChargeCount:        int64(c.ChargeCount),
		Status:             string(domain.StatusDetected),
		CreatedTS:          now,
		UpdatedTS:          bigquery.NullTimestamp{Timestamp: now, Valid: true},
	}
}

// ToDomain converts a stored subscription row.
func (s *SubscriptionRow) ToDomain() (domain.Subscription, error) {
	freq, err := domain.ParseFrequency(s.Frequency)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("SubscriptionRow.ToDomain: %s: %w", s.SubscriptionID, err)
	}

	sub := domain.Subscription{
		SubscriptionID: s.SubscriptionID,
		SubscriptionCandidate: domain.SubscriptionCandidate{
			UserID:             s.UserID,
			Merchant:           s.Merchant,
			MerchantKey:        s.MerchantKey,
			Frequency:          freq,
			AverageAmountCents: s.AverageAmountCents,
			Confidence:         s.Confidence,
			NextExpectedDate:   dateOrZero(s.NextExpectedDate),
			FirstSeenDate:      dateOrZero(s.FirstSeenDate),
			LastChargeDate:     dateOrZero(s.LastChargeDate),
			ChargeCount:        int(s.ChargeCount),
		},
		Status:    domain.SubscriptionStatus(s.Status),
		Zombie:    domain.Unflagged(),
		CreatedAt: s.CreatedTS,
	}
	if s.ZombieScore.Valid {
		v := s.ZombieScore.Float64
		sub.ZombieScore = &v
	}
	if s.ZombieFlaggedTS.Valid {
		sub.Zombie = domain.FlaggedAt(s.ZombieFlaggedTS.Timestamp)
	}
	if s.UpdatedTS.Valid {
		sub.UpdatedAt = s.UpdatedTS.Timestamp
	}
	return sub, nil
}

// WriteTimes returns the row's created and updated timestamps, using
// fallback for the ones that are unset.
func (s *SubscriptionRow) WriteTimes(fallback time.Time) (created, updated time.Time) {
	created, updated = s.CreatedTS, fallback
	if created.IsZero() {
		created = fallback
	}
	if s.UpdatedTS.Valid {
		updated = s.UpdatedTS.Timestamp
	}
	return created.UTC(), updated.UTC()
}

// SubscriptionsToDomain converts rows, failing on the first unreadable one.
func SubscriptionsToDomain(rows []*SubscriptionRow) ([]domain.Subscription, error) {
	subs := make([]domain.Subscription, 0, len(rows))
	for _, r := range rows {
		sub, err := r.ToDomain()
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// NewNudgeRow maps a nudge onto the nudges table.
func NewNudgeRow(n domain.Nudge) *NudgeRow {
	return &NudgeRow{
		NudgeID:        n.NudgeID,
		UserID:         n.UserID,
		SubscriptionID: bigquery.NullString{StringVal: n.SubscriptionID, Valid: n.SubscriptionID != ""},
		Kind:           string(n.Kind),
		Title:          n.Title,
		Body:           n.Body,
		Score:          bigquery.NullFloat64{Float64: n.Score, Valid: true},
		CreatedTS:      n.CreatedAt,
	}
}

// ToDomain converts a stored nudge row.
func (n *NudgeRow) ToDomain() domain.Nudge {
	return domain.Nudge{
		NudgeID:        n.NudgeID,
		UserID:         n.UserID,
		SubscriptionID: n.SubscriptionID.StringVal,
		Kind:           domain.NudgeKind(n.Kind),
		Title:          n.Title,
		Body:           n.Body,
		Score:          n.Score.Float64,
		CreatedAt:      n.CreatedTS,
	}
}

func dateOrZero(d civil.Date) time.Time {
	if !d.IsValid() {
		return time.Time{}
	}
	return d.In(time.UTC)
}
