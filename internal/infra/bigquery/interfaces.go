package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/saveplus/saveplus/internal/bigquery"
)

// Re-export row types from the shared package so callers of this package
// do not need both imports.
type (
	TransactionRow  = bq.TransactionRow
	SubscriptionRow = bq.SubscriptionRow
	NudgeRow        = bq.NudgeRow
)

const (
	transactionsTable  = "transactions"
	subscriptionsTable = "subscriptions"
	nudgesTable        = "nudges"
)

// Tables names the dataset the repository reads and writes.
type Tables struct {
	ProjectID string
	DatasetID string
}

// name returns the fully qualified, backquoted table name.
func (t Tables) name(table string) string {
	return "`" + t.ProjectID + "." + t.DatasetID + "." + table + "`"
}

// Repository is the BigQuery implementation of bq.Store. It holds a shared
// BigQuery client to avoid creating a new connection for each operation.
type Repository struct {
	client *bigquery.Client
	tables Tables
}

var _ bq.Store = (*Repository)(nil)

// NewRepository creates a Repository with a shared BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient wraps an existing client. The repository takes
// ownership of the client and closes it in Close.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	return &Repository{
		client: client,
		tables: Tables{ProjectID: client.Project(), DatasetID: datasetID},
	}
}

// Client exposes the underlying client for migrations.
func (r *Repository) Client() *bigquery.Client {
	return r.client
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// QueryUserTransactions delegates to QueryUserTransactionsWithClient with the shared client.
func (r *Repository) QueryUserTransactions(ctx context.Context, userID string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	return QueryUserTransactionsWithClient(ctx, r.client, r.tables, userID, startDate, endDate)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (r *Repository) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, r.client, r.tables, rows)
}

// ListActiveUserIDs delegates to ListActiveUserIDsWithClient with the shared client.
func (r *Repository) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	return ListActiveUserIDsWithClient(ctx, r.client, r.tables, since)
}

// UpsertCandidates delegates to UpsertCandidatesWithClient with the shared client.
func (r *Repository) UpsertCandidates(ctx context.Context, userID string, rows []*SubscriptionRow) error {
	return UpsertCandidatesWithClient(ctx, r.client, r.tables, userID, rows)
}

// ListSubscriptions delegates to ListSubscriptionsWithClient with the shared client.
func (r *Repository) ListSubscriptions(ctx context.Context, userID string) ([]*SubscriptionRow, error) {
	return ListSubscriptionsWithClient(ctx, r.client, r.tables, userID, "")
}

// ListConfirmedSubscriptions delegates to ListSubscriptionsWithClient filtered on status.
func (r *Repository) ListConfirmedSubscriptions(ctx context.Context, userID string) ([]*SubscriptionRow, error) {
	return ListSubscriptionsWithClient(ctx, r.client, r.tables, userID, "confirmed")
}

// UpdateZombieScore delegates to UpdateZombieScoreWithClient with the shared client.
func (r *Repository) UpdateZombieScore(ctx context.Context, subscriptionID string, score float64, scoredAt time.Time) error {
	return UpdateZombieScoreWithClient(ctx, r.client, r.tables, subscriptionID, score, scoredAt)
}

// MarkZombieFlagged delegates to MarkZombieFlaggedWithClient with the shared client.
func (r *Repository) MarkZombieFlagged(ctx context.Context, subscriptionID string, score float64, flaggedAt time.Time) (bool, error) {
	return MarkZombieFlaggedWithClient(ctx, r.client, r.tables, subscriptionID, score, flaggedAt)
}

// SetStatus delegates to SetStatusWithClient with the shared client.
func (r *Repository) SetStatus(ctx context.Context, subscriptionID, status string) error {
	return SetStatusWithClient(ctx, r.client, r.tables, subscriptionID, status)
}

// InsertNudgeIfAbsent delegates to InsertNudgeIfAbsentWithClient with the shared client.
func (r *Repository) InsertNudgeIfAbsent(ctx context.Context, row *NudgeRow) (bool, error) {
	return InsertNudgeIfAbsentWithClient(ctx, r.client, r.tables, row)
}

// ListNudges delegates to ListNudgesWithClient with the shared client.
func (r *Repository) ListNudges(ctx context.Context, userID string) ([]*NudgeRow, error) {
	return ListNudgesWithClient(ctx, r.client, r.tables, userID)
}

// runDML runs a DML statement, waits for it and returns the number of
// affected rows.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics == nil {
		return 0, nil
	}
	qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return 0, nil
	}
	return qs.NumDMLAffectedRows, nil
}
