package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/saveplus/saveplus/internal/domain"
)

func TestTransactionRow_ToDomain(t *testing.T) {
	row := &TransactionRow{
		TransactionID:   "tx-1",
		UserID:          "user-1",
		TransactionDate: civil.Date{Year: 2026, Month: 3, Day: 15},
		Amount:          big.NewRat(-1599, 100),
		RawDescription:  "NETFLIX.COM 866-579-7172",
		MerchantName:    bigquery.NullString{StringVal: "Netflix", Valid: true},
		CategoryName:    bigquery.NullString{StringVal: "Subscriptions", Valid: true},
	}

	tx, ok := row.ToDomain()
	if !ok {
		t.Fatal("expected row to convert")
	}
	if tx.Amount != -1599 {
		t.Errorf("Amount = %d, want -1599", tx.Amount)
	}
	if tx.Merchant != "Netflix" {
		t.Errorf("Merchant = %q, want Netflix", tx.Merchant)
	}
	if !tx.Date.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", tx.Date)
	}
}

func TestTransactionRow_ToDomainFallsBackToDescription(t *testing.T) {
	row := &TransactionRow{
		TransactionDate: civil.Date{Year: 2026, Month: 3, Day: 15},
		Amount:          big.NewRat(5, 1),
		RawDescription:  "  Corner Shop ",
	}
	tx, ok := row.ToDomain()
	if !ok || tx.Merchant != "Corner Shop" || tx.Amount != 500 {
		t.Errorf("ToDomain = %+v, %v", tx, ok)
	}
}

func TestTransactionsToDomain_SkipsMalformedRows(t *testing.T) {
	rows := []*TransactionRow{
		{TransactionID: "no-amount", TransactionDate: civil.Date{Year: 2026, Month: 1, Day: 1}},
		{TransactionID: "no-date", Amount: big.NewRat(1, 1)},
		nil,
		{TransactionID: "ok", TransactionDate: civil.Date{Year: 2026, Month: 1, Day: 1}, Amount: big.NewRat(1, 1), RawDescription: "x"},
	}
	got := TransactionsToDomain(rows)
	if len(got) != 1 || got[0].ID != "ok" {
		t.Errorf("TransactionsToDomain = %+v", got)
	}
}

func TestSubscriptionRow_RoundTripsFlag(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := domain.SubscriptionCandidate{
		UserID:             "user-1",
		Merchant:           "Hulu",
		MerchantKey:        "hulu",
		Frequency:          domain.FrequencyMonthly,
		AverageAmountCents: 799,
		Confidence:         0.99,
		NextExpectedDate:   now.AddDate(0, 0, 30),
		FirstSeenDate:      now.AddDate(0, -3, 0),
		LastChargeDate:     now,
		ChargeCount:        4,
	}

	row := NewSubscriptionRow(c, now)
	if row.SubscriptionID != domain.SubscriptionID("user-1", "hulu") {
		t.Errorf("SubscriptionID = %s", row.SubscriptionID)
	}
	row.ZombieFlaggedTS = bigquery.NullTimestamp{Timestamp: now, Valid: true}

	sub, err := row.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if sub.Status != domain.StatusDetected {
		t.Errorf("Status = %s", sub.Status)
	}
	if at, ok := sub.Zombie.At(); !ok || !at.Equal(now) {
		t.Errorf("Zombie = %v", sub.Zombie)
	}
	if !sub.LastChargeDate.Equal(domain.DateOnly(now)) {
		t.Errorf("LastChargeDate = %v", sub.LastChargeDate)
	}
}

func TestSubscriptionRow_UnknownFrequency(t *testing.T) {
	row := &SubscriptionRow{SubscriptionID: "s", Frequency: "daily"}
	if _, err := row.ToDomain(); err == nil {
		t.Error("expected error for unknown frequency")
	}
}

func TestSubscriptionRow_WriteTimes(t *testing.T) {
	run := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fallback := run.Add(time.Hour)

	created, updated := NewSubscriptionRow(domain.SubscriptionCandidate{UserID: "u", MerchantKey: "k"}, run).WriteTimes(fallback)
	if !created.Equal(run) || !updated.Equal(run) {
		t.Errorf("WriteTimes = %v, %v, want run time", created, updated)
	}

	created, updated = (&SubscriptionRow{}).WriteTimes(fallback)
	if !created.Equal(fallback) || !updated.Equal(fallback) {
		t.Errorf("WriteTimes on empty row = %v, %v, want fallback", created, updated)
	}
}
