package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday
var now = time.Date(2026, 10, 15, 18, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestParse_FullUtterance(t *testing.T) {
	d, err := NewParser().Parse("spent $12.50 at Starbucks on coffee yesterday", now)
	require.NoError(t, err)

	assert.Equal(t, int64(-1250), d.AmountCents)
	assert.Equal(t, DirectionExpense, d.Direction)
	assert.Equal(t, "Starbucks", d.Merchant)
	assert.Equal(t, "Food & Dining", d.Category)
	assert.True(t, d.Date.Equal(day(-1)), "date = %v", d.Date)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestParse_Amounts(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"paid $1,250.00 rent", -125000},
		{"paid $ 7 for parking", -700},
		{"spent 40 bucks on gas", -4000},
		{"spent 19.99 dollars on movies", -1999},
		{"spent 8.5 on lunch 3 days ago", -850},
		{"3 days ago I spent 15 on lunch", -1500},
		{"received 500 dollars from Acme", 50000},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, err := p.Parse(tt.text, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.AmountCents)
		})
	}
}

func TestParse_NoAmount(t *testing.T) {
	_, err := NewParser().Parse("bought coffee at Starbucks yesterday", now)
	assert.True(t, errors.Is(err, ErrNoAmount))

	_, err = NewParser().Parse("spent $0 at the library", now)
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestParse_Income(t *testing.T) {
	d, err := NewParser().Parse("got paid 2000 dollars from Acme Corp.", now)
	require.NoError(t, err)

	assert.Equal(t, DirectionIncome, d.Direction)
	assert.Equal(t, int64(200000), d.AmountCents)
	assert.Equal(t, "Acme Corp", d.Merchant)
	assert.Equal(t, "Income", d.Category)
	assert.True(t, d.Date.Equal(day(0)))
	assert.Equal(t, 0.8, d.Confidence)
}

func TestParse_Merchant(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"spent 20 at Whole Foods Market today", "Whole Foods Market"},
		{"paid 45 to the gym", "gym"},
		{"went to buy shoes at Nike for 80", "Nike"},
		{"spent 12 on lunch", ""},
		{"spent 9 at Joe's, then went home", "Joe's"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, err := p.Parse(tt.text, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Merchant)
		})
	}
}

func TestParse_Dates(t *testing.T) {
	tests := []struct {
		text     string
		want     time.Time
		explicit bool
	}{
		{"spent 5 on coffee", day(0), false},
		{"spent 5 on coffee today", day(0), true},
		{"spent 5 on coffee yesterday", day(-1), true},
		{"spent 5 on coffee 10 days ago", day(-10), true},
		{"spent 5 on coffee on Monday", day(-3), true},
		{"spent 5 on coffee on thursday", day(0), true},
		{"spent 5 on coffee last Thursday", day(-7), true},
		{"spent 5 on coffee last friday", day(-6), true},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, err := p.Parse(tt.text, now)
			require.NoError(t, err)
			assert.True(t, d.Date.Equal(tt.want), "date = %v, want %v", d.Date, tt.want)

			// amount + category, plus 0.2 for an explicit date
			want := 0.6
			if tt.explicit {
				want = 0.8
			}
			assert.Equal(t, want, d.Confidence)
		})
	}
}

func TestParse_Uncategorized(t *testing.T) {
	d, err := NewParser().Parse("spent $30", now)
	require.NoError(t, err)
	assert.Equal(t, Uncategorized, d.Category)
	assert.Equal(t, 0.4, d.Confidence)
}

func TestNewParserFromYAML(t *testing.T) {
	p, err := NewParserFromYAML([]byte(`
categories:
  - name: Pets
    keywords: [vet, "dog food"]
`))
	require.NoError(t, err)

	d, err := p.Parse("spent $60 on dog food", now)
	require.NoError(t, err)
	assert.Equal(t, "Pets", d.Category)

	_, err = NewParserFromYAML([]byte("categories:\n  - keywords: [x]\n"))
	assert.Error(t, err)

	_, err = NewParserFromYAML([]byte("categories: [unclosed"))
	assert.Error(t, err)
}

func TestDraft_Transaction(t *testing.T) {
	d, err := NewParser().Parse("spent $4.25 at Blue Bottle on coffee", now)
	require.NoError(t, err)

	tx := d.Transaction("tx-1", "user-1")
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, "user-1", tx.UserID)
	assert.Equal(t, int64(-425), tx.Amount)
	assert.Equal(t, "Blue Bottle", tx.Merchant)
	assert.Equal(t, "Food & Dining", tx.Category)
}
