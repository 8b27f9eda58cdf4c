package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// InsertTransactionsWithClient inserts a batch of TransactionRow into the
// transactions table using the provided BigQuery client.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(t.ProjectID, t.DatasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}

	return nil
}

// QueryUserTransactionsWithClient queries one user's transactions within the
// specified date range using the provided BigQuery client.
func QueryUserTransactionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, userID string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			user_id,
			account_id,
			transaction_date,
			amount,
			currency,
			raw_description,
			merchant_name,
			category_name,
			source,
			external_reference,
			created_ts
		FROM ` + t.name(transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: civil.DateOf(startDate)},
		{Name: "end_date", Value: civil.DateOf(endDate)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryUserTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryUserTransactions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// ListActiveUserIDsWithClient returns the distinct users with a transaction
// on or after since.
func ListActiveUserIDsWithClient(ctx context.Context, client *bigquery.Client, t Tables, since time.Time) ([]string, error) {
	q := client.Query(`
		SELECT DISTINCT user_id
		FROM ` + t.name(transactionsTable) + `
		WHERE transaction_date >= @since
		  AND user_id IS NOT NULL
		ORDER BY user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "since", Value: civil.DateOf(since)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveUserIDs: query read: %w", err)
	}

	var ids []string
	for {
		var r struct {
			UserID string `bigquery:"user_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveUserIDs: iter next: %w", err)
		}
		ids = append(ids, r.UserID)
	}

	return ids, nil
}
