// Package banksync reads transaction exports from the bank-linking provider
// and turns them into transaction rows.
package banksync

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/shopspring/decimal"
)

// ErrMalformedExport is returned when the document itself cannot be read.
var ErrMalformedExport = errors.New("malformed export")

// Source is recorded on every row ingested from an export.
const Source = "bank_sync"

// Record is one transaction in a provider export. Amounts follow the
// provider's convention: positive is money leaving the account.
type Record struct {
	TransactionID string      `json:"transaction_id"`
	AccountID     string      `json:"account_id"`
	UserID        string      `json:"user_id"`
	Date          string      `json:"date"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"iso_currency_code"`
	Name          string      `json:"name"`
	MerchantName  string      `json:"merchant_name"`
	Category      []string    `json:"category"`
	Pending       bool        `json:"pending"`
}

// ParseResult is the outcome of parsing one export.
type ParseResult struct {
	Rows    []*bq.TransactionRow
	Skipped int
	Pending int
	// Problems describes each skipped record, for logs.
	Problems []string
}

// Parse decodes a JSON array or JSON-lines export. Records that cannot be
// used are skipped and counted; only an unreadable document is an error.
// userID fills records that do not carry one.
func Parse(data []byte, userID string, now time.Time) (*ParseResult, error) {
	raw, err := splitRecords(data)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w: %v", ErrMalformedExport, err)
	}

	res := &ParseResult{Rows: make([]*bq.TransactionRow, 0, len(raw))}
	seen := make(map[string]bool, len(raw))
	for i, msg := range raw {
		var rec Record
		if err := json.Unmarshal(msg, &rec); err != nil {
			res.skip("record %d: %v", i, err)
			continue
		}
		if rec.Pending {
			res.Pending++
			continue
		}

		row, err := rec.toRow(userID, now)
		if err != nil {
			res.skip("record %d (%s): %v", i, rec.TransactionID, err)
			continue
		}
		if seen[row.TransactionID] {
			res.skip("record %d (%s): duplicate transaction_id", i, rec.TransactionID)
			continue
		}
		seen[row.TransactionID] = true
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func (r *ParseResult) skip(format string, args ...interface{}) {
	r.Skipped++
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// splitRecords returns the raw JSON of every record without decoding it,
// so one bad record does not lose the rest.
func splitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return arr, nil
	}

	var out []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read JSON lines: %w", err)
	}
	return out, nil
}

func (rec Record) toRow(defaultUserID string, now time.Time) (*bq.TransactionRow, error) {
	id := strings.TrimSpace(rec.TransactionID)
	if id == "" {
		return nil, fmt.Errorf("missing transaction_id")
	}

	userID := strings.TrimSpace(rec.UserID)
	if userID == "" {
		userID = defaultUserID
	}
	if userID == "" {
		return nil, fmt.Errorf("missing user_id")
	}

	date, err := bq.ParseCivilDate(strings.TrimSpace(rec.Date))
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}

	if rec.Amount == "" {
		return nil, fmt.Errorf("missing amount")
	}
	amount, err := decimal.NewFromString(rec.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", rec.Amount, err)
	}

	name := strings.TrimSpace(rec.Name)
	merchantName := strings.TrimSpace(rec.MerchantName)
	if name == "" && merchantName == "" {
		return nil, fmt.Errorf("missing name and merchant_name")
	}
	if name == "" {
		name = merchantName
	}

	currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
	if currency == "" {
		currency = "USD"
	}

	var category string
	if len(rec.Category) > 0 {
		category = strings.TrimSpace(rec.Category[0])
	}

	// provider debits are positive; stored expenses are negative
	stored := amount.Neg().Round(2)

	return &bq.TransactionRow{
		TransactionID:     id,
		UserID:            userID,
		AccountID:         rec.AccountID,
		TransactionDate:   date,
		Amount:            stored.Rat(),
		Currency:          currency,
		RawDescription:    name,
		MerchantName:      bigquery.NullString{StringVal: merchantName, Valid: merchantName != ""},
		CategoryName:      bigquery.NullString{StringVal: category, Valid: category != ""},
		Source:            Source,
		ExternalReference: bigquery.NullString{StringVal: id, Valid: true},
		CreatedTS:         now,
	}, nil
}
