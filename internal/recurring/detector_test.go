package recurring

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/saveplus/saveplus/internal/domain"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// series builds a merchant's charges separated by the given day gaps.
func series(merchantName string, amounts []int64, gaps ...int) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(gaps)+1)
	date := start
	for i := 0; i <= len(gaps); i++ {
		if i > 0 {
			date = date.AddDate(0, 0, gaps[i-1])
		}
		amount := amounts[0]
		if i < len(amounts) {
			amount = amounts[i]
		}
		txs = append(txs, domain.Transaction{
			ID:       fmt.Sprintf("%s-%d", merchantName, i),
			UserID:   "user-1",
			Merchant: merchantName,
			Amount:   -amount,
			Date:     date,
			Category: "Subscriptions",
		})
	}
	return txs
}

func TestDetect_EmptyInput(t *testing.T) {
	got := Detect(nil, DefaultOptions())
	if got == nil || len(got) != 0 {
		t.Errorf("Detect(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestDetect_SingleTransactionGroupsEmitNothing(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "1", UserID: "user-1", Merchant: "Netflix", Amount: -1599, Date: start},
		{ID: "2", UserID: "user-1", Merchant: "Spotify", Amount: -999, Date: start.AddDate(0, 0, 3)},
		{ID: "3", UserID: "user-1", Merchant: "Hulu", Amount: -799, Date: start.AddDate(0, 1, 0)},
	}
	if got := Detect(txs, DefaultOptions()); len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestDetect_RegularMonthly(t *testing.T) {
	txs := series("Netflix", []int64{999, 999, 999, 999}, 30, 30, 30)

	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.Frequency != domain.FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", c.Frequency)
	}
	if c.Confidence != MaxConfidence {
		t.Errorf("Confidence = %v, want %v", c.Confidence, MaxConfidence)
	}
	if c.AverageAmountCents != 999 {
		t.Errorf("AverageAmountCents = %d, want 999", c.AverageAmountCents)
	}
	last := start.AddDate(0, 0, 90)
	if !c.LastChargeDate.Equal(last) {
		t.Errorf("LastChargeDate = %v, want %v", c.LastChargeDate, last)
	}
	if want := last.AddDate(0, 0, 30); !c.NextExpectedDate.Equal(want) {
		t.Errorf("NextExpectedDate = %v, want %v", c.NextExpectedDate, want)
	}
	if !c.FirstSeenDate.Equal(start) {
		t.Errorf("FirstSeenDate = %v, want %v", c.FirstSeenDate, start)
	}
	if c.ChargeCount != 4 || c.UserID != "user-1" {
		t.Errorf("unexpected candidate %+v", c)
	}
}

func TestDetect_IrregularGroupIsRejected(t *testing.T) {
	txs := series("Gym", []int64{4000}, 30, 45, 30)
	if got := Detect(txs, DefaultOptions()); len(got) != 0 {
		t.Errorf("expected irregular group to be rejected, got %+v", got)
	}
}

func TestDetect_TwoTransactionsAlwaysConsistent(t *testing.T) {
	txs := series("Random Store", []int64{1234, 98765}, 17)
	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("two-transaction groups are accepted, got %d candidates", len(got))
	}
	if got[0].Frequency != domain.FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", got[0].Frequency)
	}
}

func TestDetect_ToleranceBand(t *testing.T) {
	// mean 30, band 3: gaps 27 and 33 are on the edge and pass
	if got := Detect(series("A", []int64{500}, 27, 33, 30), DefaultOptions()); len(got) != 1 {
		t.Errorf("gaps within the band should pass, got %d", len(got))
	}
	// mean 30, gap 26 deviates by 4
	if got := Detect(series("B", []int64{500}, 26, 34, 30), DefaultOptions()); len(got) != 0 {
		t.Errorf("gaps outside the band should fail, got %d", len(got))
	}
}

func TestClassify_Boundaries(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		gap  float64
		want domain.Frequency
	}{
		{7, domain.FrequencyWeekly},
		{9, domain.FrequencyWeekly},
		{9.5, domain.FrequencyMonthly},
		{35, domain.FrequencyMonthly},
		{36, domain.FrequencyQuarterly},
		{100, domain.FrequencyQuarterly},
		{101, domain.FrequencyYearly},
		{365, domain.FrequencyYearly},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.gap), func(t *testing.T) {
			if got := Classify(tt.gap, opts); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.gap, got, tt.want)
			}
		})
	}
}

func TestDetect_ConfidenceBounds(t *testing.T) {
	tests := []struct {
		name    string
		amounts []int64
		check   func(float64) bool
	}{
		{"uniform amounts cap at 0.99", []int64{999, 999, 999}, func(c float64) bool { return c == 0.99 }},
		{"moderate variance", []int64{999, 500, 999}, func(c float64) bool { return math.Abs(c-0.7336) < 1e-3 }},
		{"large variance floors at 0.5", []int64{100, 10000, 100}, func(c float64) bool { return c == 0.5 }},
		{"zero amounts default to floor", []int64{0, 0, 0}, func(c float64) bool { return c == 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(series("Service", tt.amounts, 30, 30), DefaultOptions())
			if len(got) != 1 {
				t.Fatalf("expected 1 candidate, got %d", len(got))
			}
			c := got[0].Confidence
			if math.IsNaN(c) || c < MinConfidence || c > MaxConfidence || !tt.check(c) {
				t.Errorf("Confidence = %v", c)
			}
		})
	}
}

func TestDetect_GroupsByNormalizedMerchant(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "1", UserID: "u", Merchant: "SPOTIFY", Amount: -999, Date: start},
		{ID: "2", UserID: "u", Merchant: "Spotify", Amount: -999, Date: start.AddDate(0, 0, 7)},
		{ID: "3", UserID: "u", Merchant: "spotify.", Amount: -999, Date: start.AddDate(0, 0, 14)},
		{ID: "4", UserID: "u", Merchant: "Spotify", Amount: -999, Date: start.AddDate(0, 0, 21)},
	}

	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Merchant != "Spotify" || got[0].MerchantKey != "spotify" {
		t.Errorf("Merchant = %q key = %q", got[0].Merchant, got[0].MerchantKey)
	}
	if got[0].Frequency != domain.FrequencyWeekly {
		t.Errorf("Frequency = %s, want weekly", got[0].Frequency)
	}
}

func TestDetect_MalformedRecordsAreSkipped(t *testing.T) {
	txs := series("Disney Plus", []int64{799}, 30, 30)
	txs = append(txs,
		domain.Transaction{ID: "no-date", UserID: "user-1", Merchant: "Disney Plus", Amount: -799},
		domain.Transaction{ID: "no-merchant", UserID: "user-1", Merchant: "  ", Amount: -799, Date: start},
	)

	got := Detect(txs, DefaultOptions())
	if len(got) != 1 || got[0].ChargeCount != 3 {
		t.Fatalf("expected malformed records to be ignored, got %+v", got)
	}
}

func TestDetect_SameDayPairIsWeekly(t *testing.T) {
	txs := series("Shop", []int64{250}, 0)
	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if got[0].Frequency != domain.FrequencyWeekly {
		t.Errorf("Frequency = %s, want weekly", got[0].Frequency)
	}
	if !got[0].NextExpectedDate.Equal(got[0].LastChargeDate) {
		t.Errorf("NextExpectedDate = %v, want %v", got[0].NextExpectedDate, got[0].LastChargeDate)
	}
}

func TestDetect_SameDayRunIsClassified(t *testing.T) {
	txs := series("Shop", []int64{250}, 0, 0)
	got := Detect(txs, DefaultOptions())
	if len(got) != 1 || got[0].ChargeCount != 3 {
		t.Errorf("expected one 3-charge candidate, got %+v", got)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	var txs []domain.Transaction
	txs = append(txs, series("Netflix", []int64{1599}, 31, 28, 31)...)
	txs = append(txs, series("iCloud", []int64{299}, 30, 31, 30)...)
	txs = append(txs, series("Amazon Prime", []int64{13900}, 365)...)

	// unordered input must not matter
	reversed := make([]domain.Transaction, len(txs))
	for i := range txs {
		reversed[len(txs)-1-i] = txs[i]
	}

	first := Detect(txs, DefaultOptions())
	second := Detect(reversed, DefaultOptions())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Detect not idempotent (-first +second):\n%s", diff)
	}
	if len(first) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(first))
	}
}

func TestDetect_NextExpectedRoundsMeanGap(t *testing.T) {
	// gaps 30, 31 -> mean 30.5 -> rounds to 31
	txs := series("Hulu", []int64{799}, 30, 31)
	got := Detect(txs, DefaultOptions())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	want := start.AddDate(0, 0, 61+31)
	if !got[0].NextExpectedDate.Equal(want) {
		t.Errorf("NextExpectedDate = %v, want %v", got[0].NextExpectedDate, want)
	}
}

func TestWindow(t *testing.T) {
	from, to := Window(time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC), 12)
	if !from.Equal(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Window = %v..%v", from, to)
	}
}
