package pipeline_test

import (
	"context"
	"time"

	bq "github.com/saveplus/saveplus/internal/bigquery"
)

// MockStore is a function-field implementation of bq.Store.
type MockStore struct {
	QueryUserTransactionsFunc      func(ctx context.Context, userID string, startDate, endDate time.Time) ([]*bq.TransactionRow, error)
	InsertTransactionsFunc         func(ctx context.Context, rows []*bq.TransactionRow) error
	ListActiveUserIDsFunc          func(ctx context.Context, since time.Time) ([]string, error)
	UpsertCandidatesFunc           func(ctx context.Context, userID string, rows []*bq.SubscriptionRow) error
	ListSubscriptionsFunc          func(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error)
	ListConfirmedSubscriptionsFunc func(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error)
	UpdateZombieScoreFunc          func(ctx context.Context, subscriptionID string, score float64, scoredAt time.Time) error
	MarkZombieFlaggedFunc          func(ctx context.Context, subscriptionID string, score float64, flaggedAt time.Time) (bool, error)
	SetStatusFunc                  func(ctx context.Context, subscriptionID, status string) error
	InsertNudgeIfAbsentFunc        func(ctx context.Context, row *bq.NudgeRow) (bool, error)
	ListNudgesFunc                 func(ctx context.Context, userID string) ([]*bq.NudgeRow, error)
}

var _ bq.Store = (*MockStore)(nil)

func (m *MockStore) QueryUserTransactions(ctx context.Context, userID string, startDate, endDate time.Time) ([]*bq.TransactionRow, error) {
	if m.QueryUserTransactionsFunc != nil {
		return m.QueryUserTransactionsFunc(ctx, userID, startDate, endDate)
	}
	return nil, nil
}

func (m *MockStore) InsertTransactions(ctx context.Context, rows []*bq.TransactionRow) error {
	if m.InsertTransactionsFunc != nil {
		return m.InsertTransactionsFunc(ctx, rows)
	}
	return nil
}

func (m *MockStore) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	if m.ListActiveUserIDsFunc != nil {
		return m.ListActiveUserIDsFunc(ctx, since)
	}
	return nil, nil
}

func (m *MockStore) UpsertCandidates(ctx context.Context, userID string, rows []*bq.SubscriptionRow) error {
	if m.UpsertCandidatesFunc != nil {
		return m.UpsertCandidatesFunc(ctx, userID, rows)
	}
	return nil
}

func (m *MockStore) ListSubscriptions(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error) {
	if m.ListSubscriptionsFunc != nil {
		return m.ListSubscriptionsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockStore) ListConfirmedSubscriptions(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error) {
	if m.ListConfirmedSubscriptionsFunc != nil {
		return m.ListConfirmedSubscriptionsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockStore) UpdateZombieScore(ctx context.Context, subscriptionID string, score float64, scoredAt time.Time) error {
	if m.UpdateZombieScoreFunc != nil {
		return m.UpdateZombieScoreFunc(ctx, subscriptionID, score, scoredAt)
	}
	return nil
}

func (m *MockStore) MarkZombieFlagged(ctx context.Context, subscriptionID string, score float64, flaggedAt time.Time) (bool, error) {
	if m.MarkZombieFlaggedFunc != nil {
		return m.MarkZombieFlaggedFunc(ctx, subscriptionID, score, flaggedAt)
	}
	return false, nil
}

func (m *MockStore) SetStatus(ctx context.Context, subscriptionID, status string) error {
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(ctx, subscriptionID, status)
	}
	return nil
}

func (m *MockStore) InsertNudgeIfAbsent(ctx context.Context, row *bq.NudgeRow) (bool, error) {
	if m.InsertNudgeIfAbsentFunc != nil {
		return m.InsertNudgeIfAbsentFunc(ctx, row)
	}
	return false, nil
}

func (m *MockStore) ListNudges(ctx context.Context, userID string) ([]*bq.NudgeRow, error) {
	if m.ListNudgesFunc != nil {
		return m.ListNudgesFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockStore) Close() error {
	return nil
}
