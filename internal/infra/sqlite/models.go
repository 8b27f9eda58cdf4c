package sqlite

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/shopspring/decimal"
)

const dateFormat = "2006-01-02"

type transactionModel struct {
	TransactionID     string    `gorm:"column:transaction_id;primaryKey"`
	UserID            string    `gorm:"column:user_id;index:idx_transactions_user_date"`
	AccountID         string    `gorm:"column:account_id"`
	TransactionDate   *string   `gorm:"column:transaction_date;index:idx_transactions_user_date"`
	AmountCents       *int64    `gorm:"column:amount_cents"`
	Currency          string    `gorm:"column:currency"`
	RawDescription    string    `gorm:"column:raw_description"`
	MerchantName      *string   `gorm:"column:merchant_name"`
	CategoryName      *string   `gorm:"column:category_name"`
	Source            string    `gorm:"column:source"`
	ExternalReference *string   `gorm:"column:external_reference"`
	CreatedTS         time.Time `gorm:"column:created_ts"`
}

func (transactionModel) TableName() string { return "transactions" }

type subscriptionModel struct {
	SubscriptionID     string     `gorm:"column:subscription_id;primaryKey"`
	UserID             string     `gorm:"column:user_id;uniqueIndex:idx_subscriptions_user_merchant"`
	Merchant           string     `gorm:"column:merchant"`
	MerchantKey        string     `gorm:"column:merchant_key;uniqueIndex:idx_subscriptions_user_merchant"`
	Frequency          string     `gorm:"column:frequency"`
	AverageAmountCents int64      `gorm:"column:average_amount_cents"`
	Confidence         float64    `gorm:"column:confidence"`
	NextExpectedDate   string     `gorm:"column:next_expected_date"`
	FirstSeenDate      string     `gorm:"column:first_seen_date"`
	LastChargeDate     string     `gorm:"column:last_charge_date"`
	ChargeCount        int64      `gorm:"column:charge_count"`
	Status             string     `gorm:"column:status;index"`
	ZombieScore        *float64   `gorm:"column:zombie_score"`
	ZombieScoredTS     *time.Time `gorm:"column:zombie_scored_ts"`
	ZombieFlaggedTS    *time.Time `gorm:"column:zombie_flagged_ts"`
	CreatedTS          time.Time  `gorm:"column:created_ts"`
	UpdatedTS          *time.Time `gorm:"column:updated_ts"`
}

func (subscriptionModel) TableName() string { return "subscriptions" }

type nudgeModel struct {
	NudgeID        string    `gorm:"column:nudge_id;primaryKey"`
	UserID         string    `gorm:"column:user_id;index"`
	SubscriptionID *string   `gorm:"column:subscription_id"`
	Kind           string    `gorm:"column:kind"`
	Title          string    `gorm:"column:title"`
	Body           string    `gorm:"column:body"`
	Score          *float64  `gorm:"column:score"`
	CreatedTS      time.Time `gorm:"column:created_ts"`
}

func (nudgeModel) TableName() string { return "nudges" }

func toTransactionModel(r *bq.TransactionRow) transactionModel {
	m := transactionModel{
		TransactionID:     r.TransactionID,
		UserID:            r.UserID,
		AccountID:         r.AccountID,
		Currency:          r.Currency,
		RawDescription:    r.RawDescription,
		MerchantName:      fromNullString(r.MerchantName),
		CategoryName:      fromNullString(r.CategoryName),
		Source:            r.Source,
		ExternalReference: fromNullString(r.ExternalReference),
		CreatedTS:         r.CreatedTS,
	}
	if r.TransactionDate.IsValid() {
		d := r.TransactionDate.String()
		m.TransactionDate = &d
	}
	if r.Amount != nil {
		if amount, err := decimal.NewFromString(r.Amount.FloatString(2)); err == nil {
			cents := amount.Shift(2).IntPart()
			m.AmountCents = &cents
		}
	}
	return m
}

func (m transactionModel) row() *bq.TransactionRow {
	r := &bq.TransactionRow{
		TransactionID:     m.TransactionID,
		UserID:            m.UserID,
		AccountID:         m.AccountID,
		Currency:          m.Currency,
		RawDescription:    m.RawDescription,
		MerchantName:      toNullString(m.MerchantName),
		CategoryName:      toNullString(m.CategoryName),
		Source:            m.Source,
		ExternalReference: toNullString(m.ExternalReference),
		CreatedTS:         m.CreatedTS,
	}
	if m.TransactionDate != nil {
		if d, err := civil.ParseDate(*m.TransactionDate); err == nil {
			r.TransactionDate = d
		}
	}
	if m.AmountCents != nil {
		r.Amount = big.NewRat(*m.AmountCents, 100)
	}
	return r
}

func toSubscriptionModel(r *bq.SubscriptionRow) subscriptionModel {
	m := subscriptionModel{
		SubscriptionID:     r.SubscriptionID,
		UserID:             r.UserID,
		Merchant:           r.Merchant,
		MerchantKey:        r.MerchantKey,
		Frequency:          r.Frequency,
		AverageAmountCents: r.AverageAmountCents,
		Confidence:         r.Confidence,
		NextExpectedDate:   r.NextExpectedDate.String(),
		FirstSeenDate:      r.FirstSeenDate.String(),
		LastChargeDate:     r.LastChargeDate.String(),
		ChargeCount:        r.ChargeCount,
		Status:             r.Status,
		CreatedTS:          r.CreatedTS,
	}
	if r.ZombieScore.Valid {
		v := r.ZombieScore.Float64
		m.ZombieScore = &v
	}
	if r.ZombieScoredTS.Valid {
		v := r.ZombieScoredTS.Timestamp
		m.ZombieScoredTS = &v
	}
	if r.ZombieFlaggedTS.Valid {
		v := r.ZombieFlaggedTS.Timestamp
		m.ZombieFlaggedTS = &v
	}
	if r.UpdatedTS.Valid {
		v := r.UpdatedTS.Timestamp
		m.UpdatedTS = &v
	}
	return m
}

func (m subscriptionModel) row() *bq.SubscriptionRow {
	r := &bq.SubscriptionRow{
		SubscriptionID:     m.SubscriptionID,
		UserID:             m.UserID,
		Merchant:           m.Merchant,
		MerchantKey:        m.MerchantKey,
		Frequency:          m.Frequency,
		AverageAmountCents: m.AverageAmountCents,
		Confidence:         m.Confidence,
		NextExpectedDate:   parseDate(m.NextExpectedDate),
		FirstSeenDate:      parseDate(m.FirstSeenDate),
		LastChargeDate:     parseDate(m.LastChargeDate),
		ChargeCount:        m.ChargeCount,
		Status:             m.Status,
		CreatedTS:          m.CreatedTS,
	}
	if m.ZombieScore != nil {
		r.ZombieScore = bigquery.NullFloat64{Float64: *m.ZombieScore, Valid: true}
	}
	if m.ZombieScoredTS != nil {
		r.ZombieScoredTS = bigquery.NullTimestamp{Timestamp: *m.ZombieScoredTS, Valid: true}
	}
	if m.ZombieFlaggedTS != nil {
		r.ZombieFlaggedTS = bigquery.NullTimestamp{Timestamp: *m.ZombieFlaggedTS, Valid: true}
	}
	if m.UpdatedTS != nil {
		r.UpdatedTS = bigquery.NullTimestamp{Timestamp: *m.UpdatedTS, Valid: true}
	}
	return r
}

func toNudgeModel(r *bq.NudgeRow) nudgeModel {
	m := nudgeModel{
		NudgeID:        r.NudgeID,
		UserID:         r.UserID,
		SubscriptionID: fromNullString(r.SubscriptionID),
		Kind:           r.Kind,
		Title:          r.Title,
		Body:           r.Body,
		CreatedTS:      r.CreatedTS,
	}
	if r.Score.Valid {
		v := r.Score.Float64
		m.Score = &v
	}
	return m
}

func (m nudgeModel) row() *bq.NudgeRow {
	r := &bq.NudgeRow{
		NudgeID:        m.NudgeID,
		UserID:         m.UserID,
		SubscriptionID: toNullString(m.SubscriptionID),
		Kind:           m.Kind,
		Title:          m.Title,
		Body:           m.Body,
		CreatedTS:      m.CreatedTS,
	}
	if m.Score != nil {
		r.Score = bigquery.NullFloat64{Float64: *m.Score, Valid: true}
	}
	return r
}

func fromNullString(ns bigquery.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.StringVal
	return &v
}

func toNullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func parseDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}
	}
	return d
}

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}
