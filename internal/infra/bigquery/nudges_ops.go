package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertNudgeIfAbsentWithClient inserts the nudge unless one with the same
// nudge_id already exists. The bool reports whether a row was written.
func InsertNudgeIfAbsentWithClient(ctx context.Context, client *bigquery.Client, t Tables, row *NudgeRow) (bool, error) {
	if row == nil || row.NudgeID == "" {
		return false, fmt.Errorf("InsertNudgeIfAbsent: nudge_id cannot be empty")
	}

	q := client.Query(`
		MERGE ` + t.name(nudgesTable) + ` T
		USING (SELECT @nudge_id AS nudge_id) S
		ON T.nudge_id = S.nudge_id
		WHEN NOT MATCHED THEN INSERT (
			nudge_id,
			user_id,
			subscription_id,
			kind,
			title,
			body,
			score,
			created_ts
		) VALUES (
			@nudge_id,
			@user_id,
			@subscription_id,
			@kind,
			@title,
			@body,
			@score,
			@created_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "nudge_id", Value: row.NudgeID},
		{Name: "user_id", Value: row.UserID},
		{Name: "subscription_id", Value: row.SubscriptionID},
		{Name: "kind", Value: row.Kind},
		{Name: "title", Value: row.Title},
		{Name: "body", Value: row.Body},
		{Name: "score", Value: row.Score},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("InsertNudgeIfAbsent: %w", err)
	}
	return n > 0, nil
}

// ListNudgesWithClient returns a user's nudges, newest first.
func ListNudgesWithClient(ctx context.Context, client *bigquery.Client, t Tables, userID string) ([]*NudgeRow, error) {
	q := client.Query(`
		SELECT
			nudge_id,
			user_id,
			subscription_id,
			kind,
			title,
			body,
			score,
			created_ts
		FROM ` + t.name(nudgesTable) + `
		WHERE user_id = @user_id
		ORDER BY created_ts DESC, nudge_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListNudges: query read: %w", err)
	}

	var rows []*NudgeRow
	for {
		var r NudgeRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListNudges: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
