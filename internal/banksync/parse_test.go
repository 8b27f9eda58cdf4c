package banksync

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)

const arrayExport = `[
  {"transaction_id": "t1", "account_id": "acc", "date": "2026-09-01", "amount": 15.99,
   "iso_currency_code": "usd", "name": "NETFLIX.COM 866-579", "merchant_name": "Netflix", "category": ["Subscriptions", "Streaming"]},
  {"transaction_id": "t2", "date": "2026-09-02", "amount": "-1200.00", "name": "ACME PAYROLL"},
  {"transaction_id": "t3", "date": "2026-09-03", "amount": 4.5, "name": "Cafe", "pending": true}
]`

func TestParse_Array(t *testing.T) {
	res, err := Parse([]byte(arrayExport), "user-1", now)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Pending)

	netflix := res.Rows[0]
	assert.Equal(t, "t1", netflix.TransactionID)
	assert.Equal(t, "user-1", netflix.UserID)
	assert.Equal(t, civil.Date{Year: 2026, Month: 9, Day: 1}, netflix.TransactionDate)
	assert.Equal(t, 0, netflix.Amount.Cmp(big.NewRat(-1599, 100)), "amount = %s", netflix.Amount.FloatString(2))
	assert.Equal(t, "USD", netflix.Currency)
	assert.Equal(t, "NETFLIX.COM 866-579", netflix.RawDescription)
	assert.Equal(t, "Netflix", netflix.MerchantName.StringVal)
	assert.Equal(t, "Subscriptions", netflix.CategoryName.StringVal)
	assert.Equal(t, Source, netflix.Source)
	assert.Equal(t, now, netflix.CreatedTS)

	payroll := res.Rows[1]
	assert.Equal(t, 0, payroll.Amount.Cmp(big.NewRat(1200, 1)), "deposits are stored positive")
	assert.False(t, payroll.MerchantName.Valid)
	assert.False(t, payroll.CategoryName.Valid)
}

func TestParse_JSONLinesFailSoft(t *testing.T) {
	export := `
{"transaction_id": "a", "user_id": "u2", "date": "2026-09-01", "amount": 10, "name": "Gym"}
not json at all
{"transaction_id": "", "date": "2026-09-01", "amount": 10, "name": "Gym"}
{"transaction_id": "b", "date": "2026-13-01", "amount": 10, "name": "Gym"}
{"transaction_id": "c", "date": "2026-09-01", "amount": "ten", "name": "Gym"}
{"transaction_id": "d", "date": "2026-09-01", "name": "Gym"}
{"transaction_id": "e", "date": "2026-09-01", "amount": 10}
{"transaction_id": "a", "date": "2026-09-01", "amount": 10, "name": "Gym"}

{"transaction_id": "f", "date": "2026-09-02", "amount": 10, "merchant_name": "Gym"}
`
	res, err := Parse([]byte(export), "fallback", now)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].TransactionID)
	assert.Equal(t, "u2", res.Rows[0].UserID, "record user_id wins over the default")
	assert.Equal(t, "f", res.Rows[1].TransactionID)
	assert.Equal(t, "Gym", res.Rows[1].RawDescription)

	assert.Equal(t, 7, res.Skipped)
	assert.Len(t, res.Problems, 7)
}

func TestParse_MissingUser(t *testing.T) {
	res, err := Parse([]byte(`{"transaction_id": "a", "date": "2026-09-01", "amount": 1, "name": "x"}`), "", now)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 1, res.Skipped)
}

func TestParse_Empty(t *testing.T) {
	res, err := Parse([]byte("  \n"), "u", now)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Zero(t, res.Skipped)
}

func TestParse_BrokenArray(t *testing.T) {
	_, err := Parse([]byte(`[{"transaction_id": "a"`), "u", now)
	assert.ErrorIs(t, err, ErrMalformedExport)
}

func TestParse_RoundsToCents(t *testing.T) {
	res, err := Parse([]byte(`[{"transaction_id": "a", "date": "2026-09-01", "amount": 9.999, "name": "x"}]`), "u", now)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "-10.00", res.Rows[0].Amount.FloatString(2))
}
