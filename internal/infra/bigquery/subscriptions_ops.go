package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"google.golang.org/api/iterator"
)

// candidateParam is one element of the @candidates ARRAY<STRUCT> parameter.
type candidateParam struct {
	SubscriptionID     string     `bigquery:"subscription_id"`
	Merchant           string     `bigquery:"merchant"`
	MerchantKey        string     `bigquery:"merchant_key"`
	Frequency          string     `bigquery:"frequency"`
	AverageAmountCents int64      `bigquery:"average_amount_cents"`
	Confidence         float64    `bigquery:"confidence"`
	NextExpectedDate   civil.Date `bigquery:"next_expected_date"`
	FirstSeenDate      civil.Date `bigquery:"first_seen_date"`
	LastChargeDate     civil.Date `bigquery:"last_charge_date"`
	ChargeCount        int64      `bigquery:"charge_count"`
	CreatedTS          time.Time  `bigquery:"created_ts"`
	UpdatedTS          time.Time  `bigquery:"updated_ts"`
}

// candidateParams checks ownership and flattens rows into MERGE parameters.
// Timestamps come from the rows so a replayed run writes the same values.
func candidateParams(userID string, rows []*SubscriptionRow, fallback time.Time) ([]candidateParam, error) {
	params := make([]candidateParam, 0, len(rows))
	for _, r := range rows {
		if r.UserID != userID {
			return nil, fmt.Errorf("row %s belongs to user %q, not %q", r.SubscriptionID, r.UserID, userID)
		}
		created, updated := r.WriteTimes(fallback)
		params = append(params, candidateParam{
			SubscriptionID:     r.SubscriptionID,
			Merchant:           r.Merchant,
			MerchantKey:        r.MerchantKey,
			Frequency:          r.Frequency,
			AverageAmountCents: r.AverageAmountCents,
			Confidence:         r.Confidence,
			NextExpectedDate:   r.NextExpectedDate,
			FirstSeenDate:      r.FirstSeenDate,
			LastChargeDate:     r.LastChargeDate,
			ChargeCount:        r.ChargeCount,
			CreatedTS:          created,
			UpdatedTS:          updated,
		})
	}
	return params, nil
}

// UpsertCandidatesWithClient merges one user's detection output into the
// subscriptions table in a single MERGE statement, keyed by
// (user_id, merchant_key). Detector columns are overwritten; status,
// zombie_* and created_ts are left alone on matched rows.
func UpsertCandidatesWithClient(ctx context.Context, client *bigquery.Client, t Tables, userID string, rows []*SubscriptionRow) error {
	if len(rows) == 0 {
		return nil
	}

	params, err := candidateParams(userID, rows, time.Now())
	if err != nil {
		return fmt.Errorf("UpsertCandidates: %w", err)
	}

	q := client.Query(`
		MERGE ` + t.name(subscriptionsTable) + ` T
		USING UNNEST(@candidates) S
		ON T.user_id = @user_id AND T.merchant_key = S.merchant_key
		WHEN MATCHED THEN UPDATE SET
			merchant = S.merchant,
			frequency = S.frequency,
			average_amount_cents = S.average_amount_cents,
			confidence = S.confidence,
			next_expected_date = S.next_expected_date,
			first_seen_date = S.first_seen_date,
			last_charge_date = S.last_charge_date,
			charge_count = S.charge_count,
			updated_ts = S.updated_ts
		WHEN NOT MATCHED THEN INSERT (
			subscription_id,
			user_id,
			merchant,
			merchant_key,
			frequency,
			average_amount_cents,
			confidence,
			next_expected_date,
			first_seen_date,
			last_charge_date,
			charge_count,
			status,
			created_ts,
			updated_ts
		) VALUES (
			S.subscription_id,
			@user_id,
			S.merchant,
			S.merchant_key,
			S.frequency,
			S.average_amount_cents,
			S.confidence,
			S.next_expected_date,
			S.first_seen_date,
			S.last_charge_date,
			S.charge_count,
			@status,
			S.created_ts,
			S.updated_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "candidates", Value: params},
		{Name: "user_id", Value: userID},
		{Name: "status", Value: "detected"},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpsertCandidates: %w", err)
	}
	return nil
}

const subscriptionColumns = `
			subscription_id,
			user_id,
			merchant,
			merchant_key,
			frequency,
			average_amount_cents,
			confidence,
			next_expected_date,
			first_seen_date,
			last_charge_date,
			charge_count,
			status,
			zombie_score,
			zombie_scored_ts,
			zombie_flagged_ts,
			created_ts,
			updated_ts`

// ListSubscriptionsWithClient lists a user's subscriptions ordered by
// merchant key. A non-empty status restricts the result to that status.
func ListSubscriptionsWithClient(ctx context.Context, client *bigquery.Client, t Tables, userID, status string) ([]*SubscriptionRow, error) {
	q := client.Query(`
		SELECT` + subscriptionColumns + `
		FROM ` + t.name(subscriptionsTable) + `
		WHERE user_id = @user_id
		  AND (@status = '' OR status = @status)
		ORDER BY merchant_key
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "status", Value: status},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListSubscriptions: query read: %w", err)
	}

	var rows []*SubscriptionRow
	for {
		var r SubscriptionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListSubscriptions: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// UpdateZombieScoreWithClient records the latest score for a subscription.
func UpdateZombieScoreWithClient(ctx context.Context, client *bigquery.Client, t Tables, subscriptionID string, score float64, scoredAt time.Time) error {
	q := client.Query(`
		UPDATE ` + t.name(subscriptionsTable) + `
		SET zombie_score = @score,
		    zombie_scored_ts = @scored_ts
		WHERE subscription_id = @subscription_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "score", Value: score},
		{Name: "scored_ts", Value: scoredAt},
		{Name: "subscription_id", Value: subscriptionID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("UpdateZombieScore: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateZombieScore: %s: %w", subscriptionID, bq.ErrNotFound)
	}
	return nil
}

// MarkZombieFlaggedWithClient sets zombie_flagged_ts if and only if it is
// still NULL. The returned bool is true when this statement performed the
// transition, so concurrent runs agree on a single winner.
func MarkZombieFlaggedWithClient(ctx context.Context, client *bigquery.Client, t Tables, subscriptionID string, score float64, flaggedAt time.Time) (bool, error) {
	q := client.Query(`
		UPDATE ` + t.name(subscriptionsTable) + `
		SET zombie_flagged_ts = @flagged_ts,
		    zombie_score = @score,
		    zombie_scored_ts = @flagged_ts
		WHERE subscription_id = @subscription_id
		  AND zombie_flagged_ts IS NULL
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "flagged_ts", Value: flaggedAt},
		{Name: "score", Value: score},
		{Name: "subscription_id", Value: subscriptionID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return false, fmt.Errorf("MarkZombieFlagged: %w", err)
	}
	return n > 0, nil
}

// SetStatusWithClient records the user's decision on a subscription.
func SetStatusWithClient(ctx context.Context, client *bigquery.Client, t Tables, subscriptionID, status string) error {
	q := client.Query(`
		UPDATE ` + t.name(subscriptionsTable) + `
		SET status = @status,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE subscription_id = @subscription_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "subscription_id", Value: subscriptionID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("SetStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetStatus: %s: %w", subscriptionID, bq.ErrNotFound)
	}
	return nil
}
