package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/saveplus/saveplus/internal/domain"
)

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func tx(id, merchantName string, cents int64, day int) domain.Transaction {
	return domain.Transaction{ID: id, UserID: "u1", Merchant: merchantName, Amount: -cents, Date: day0.AddDate(0, 0, day)}
}

func TestDetect_Empty(t *testing.T) {
	if got := Detect(nil, DefaultOptions()); got == nil || len(got) != 0 {
		t.Errorf("Detect(nil) = %#v", got)
	}
}

func TestDetect_UnusualAmount(t *testing.T) {
	txs := []domain.Transaction{
		tx("1", "Whole Foods", 8000, 0),
		tx("2", "Whole Foods", 9000, 7),
		tx("3", "Whole Foods", 8500, 14),
		tx("4", "Whole Foods", 9500, 21),
		tx("5", "Whole Foods", 42000, 28),
	}

	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 anomaly, got %+v", got)
	}
	a := got[0]
	if a.TransactionID != "5" || a.Kind != KindUnusualAmount {
		t.Errorf("anomaly = %+v", a)
	}
	if a.BaselineCents != 8750 || a.ZScore <= 2.5 || a.Severity != SeverityHigh {
		t.Errorf("baseline=%d z=%v severity=%s", a.BaselineCents, a.ZScore, a.Severity)
	}
	if a.Description != "Whole Foods charged $420.00, usually around $87.50" {
		t.Errorf("Description = %q", a.Description)
	}
}

func TestDetect_NeedsHistory(t *testing.T) {
	txs := []domain.Transaction{
		tx("1", "Shell", 4000, 0),
		tx("2", "Shell", 4100, 7),
		tx("3", "Shell", 3900, 14),
		tx("4", "Shell", 40000, 21),
	}
	if got := Detect(txs, DefaultOptions()); len(got) != 0 {
		t.Errorf("three prior charges are not enough history, got %+v", got)
	}
}

func TestDetect_FlatBaseline(t *testing.T) {
	tests := []struct {
		last int64
		want int
	}{
		{1599, 0},
		{2300, 0}, // +43.8%
		{2500, 1}, // +56.3%
		{500, 1},  // -68.7%
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.last), func(t *testing.T) {
			txs := []domain.Transaction{
				tx("1", "Netflix", 1599, 0),
				tx("2", "Netflix", 1599, 30),
				tx("3", "Netflix", 1599, 60),
				tx("4", "Netflix", 1599, 90),
				tx("5", "Netflix", tt.last, 120),
			}
			got := Detect(txs, DefaultOptions())
			if len(got) != tt.want {
				t.Errorf("got %+v", got)
			}
			if tt.want == 1 && got[0].ZScore != 0 {
				t.Errorf("flat baseline should not report a z-score, got %v", got[0].ZScore)
			}
		})
	}
}

func TestDetect_DuplicateCharge(t *testing.T) {
	txs := []domain.Transaction{
		tx("b", "UBER *TRIP", 1850, 3),
		tx("a", "Uber Trip", 1850, 3),
		tx("c", "Uber Trip", 2200, 3),
		tx("d", "Uber Trip", 1850, 4),
	}

	got := Detect(txs, DefaultOptions())
	want := []Anomaly{{
		TransactionID: "b",
		UserID:        "u1",
		Merchant:      "UBER *TRIP",
		Date:          day0.AddDate(0, 0, 3),
		AmountCents:   -1850,
		Kind:          KindDuplicateCharge,
		Severity:      SeverityMedium,
		Description:   "UBER *TRIP charged $18.50 twice on the same day",
		RelatedID:     "a",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Detect mismatch (-want +got):\n%s", diff)
	}
}

func TestDetect_SortedByDateThenID(t *testing.T) {
	txs := []domain.Transaction{
		tx("z", "Cafe", 500, 2), tx("y", "Cafe", 500, 2),
		tx("b", "Bar", 900, 1), tx("a", "Bar", 900, 1),
	}
	got := Detect(txs, DefaultOptions())
	if len(got) != 2 || got[0].TransactionID != "b" || got[1].TransactionID != "z" {
		t.Errorf("order = %+v", got)
	}
}

func TestDetect_IgnoresMalformedAndZero(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "1", Merchant: "Cafe", Amount: 0, Date: day0},
		{ID: "2", Merchant: "Cafe", Amount: 0, Date: day0},
		{ID: "3", Merchant: "", Amount: -500, Date: day0},
		{ID: "4", Merchant: "", Amount: -500, Date: day0},
		{ID: "5", Merchant: "Cafe", Amount: -500},
		{ID: "6", Merchant: "Cafe", Amount: -500},
	}
	if got := Detect(txs, DefaultOptions()); len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}
