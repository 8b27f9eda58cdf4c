package sqlite

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func candidate(userID, merchantKey string, cents int64) domain.SubscriptionCandidate {
	last := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return domain.SubscriptionCandidate{
		UserID:             userID,
		Merchant:           strings.ToUpper(merchantKey[:1]) + merchantKey[1:],
		MerchantKey:        merchantKey,
		Frequency:          domain.FrequencyMonthly,
		AverageAmountCents: cents,
		Confidence:         0.99,
		NextExpectedDate:   last.AddDate(0, 0, 30),
		FirstSeenDate:      last.AddDate(0, -3, 0),
		LastChargeDate:     last,
		ChargeCount:        4,
	}
}

func TestStore_TransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rows := []*bq.TransactionRow{
		{TransactionID: "t1", UserID: "u1", TransactionDate: civil.Date{Year: 2026, Month: 4, Day: 1}, Amount: big.NewRat(-1599, 100), RawDescription: "Netflix"},
		{TransactionID: "t2", UserID: "u1", TransactionDate: civil.Date{Year: 2026, Month: 5, Day: 1}, Amount: big.NewRat(-1599, 100), RawDescription: "Netflix",
			CategoryName: bigquery.NullString{StringVal: "Subscriptions", Valid: true}},
		{TransactionID: "t3", UserID: "u2", TransactionDate: civil.Date{Year: 2025, Month: 1, Day: 1}, Amount: big.NewRat(-500, 100), RawDescription: "Old"},
	}
	require.NoError(t, s.InsertTransactions(ctx, rows))
	// re-inserting the same IDs is a no-op
	require.NoError(t, s.InsertTransactions(ctx, rows))

	got, err := s.QueryUserTransactions(ctx, "u1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)

	txs := bq.TransactionsToDomain(got)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-1599), txs[0].Amount)
	assert.Equal(t, "Subscriptions", txs[1].Category)

	ids, err := s.ListActiveUserIDs(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestStore_UpsertPreservesStatusAndFlag(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	first := []*bq.SubscriptionRow{
		bq.NewSubscriptionRow(candidate("u1", "netflix", 1599), now),
		bq.NewSubscriptionRow(candidate("u1", "spotify", 999), now),
	}
	require.NoError(t, s.UpsertCandidates(ctx, "u1", first))

	subID := domain.SubscriptionID("u1", "netflix")
	require.NoError(t, s.SetStatus(ctx, subID, string(domain.StatusConfirmed)))
	flagged, err := s.MarkZombieFlagged(ctx, subID, 88, now)
	require.NoError(t, err)
	require.True(t, flagged)

	// a later run sees a price increase
	second := []*bq.SubscriptionRow{bq.NewSubscriptionRow(candidate("u1", "netflix", 1799), now.Add(24*time.Hour))}
	require.NoError(t, s.UpsertCandidates(ctx, "u1", second))

	rows, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	netflix := rows[0]
	assert.Equal(t, "netflix", netflix.MerchantKey)
	assert.Equal(t, int64(1799), netflix.AverageAmountCents)
	assert.Equal(t, "confirmed", netflix.Status)
	assert.True(t, netflix.ZombieFlaggedTS.Valid)
	assert.True(t, netflix.ZombieFlaggedTS.Timestamp.Equal(now))

	confirmed, err := s.ListConfirmedSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, subID, confirmed[0].SubscriptionID)
}

func TestStore_UpsertUsesRunTimestamps(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	run := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	later := run.Add(24 * time.Hour)

	require.NoError(t, s.UpsertCandidates(ctx, "u1", []*bq.SubscriptionRow{bq.NewSubscriptionRow(candidate("u1", "netflix", 1599), run)}))
	require.NoError(t, s.UpsertCandidates(ctx, "u1", []*bq.SubscriptionRow{bq.NewSubscriptionRow(candidate("u1", "netflix", 1599), later)}))

	rows, err := s.ListSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].CreatedTS.Equal(run), "created_ts = %v", rows[0].CreatedTS)
	require.True(t, rows[0].UpdatedTS.Valid)
	assert.True(t, rows[0].UpdatedTS.Timestamp.Equal(later), "updated_ts = %v", rows[0].UpdatedTS.Timestamp)
}

func TestStore_UpsertRejectsForeignRows(t *testing.T) {
	s := openTestStore(t)
	rows := []*bq.SubscriptionRow{bq.NewSubscriptionRow(candidate("u2", "hulu", 799), time.Now())}
	assert.Error(t, s.UpsertCandidates(context.Background(), "u1", rows))
}

func TestStore_MarkZombieFlaggedOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertCandidates(ctx, "u1", []*bq.SubscriptionRow{bq.NewSubscriptionRow(candidate("u1", "peloton", 4400), now)}))
	subID := domain.SubscriptionID("u1", "peloton")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.MarkZombieFlagged(ctx, subID, 90, now.Add(time.Duration(i)*time.Minute))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				wins++
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, wins)
}

func TestStore_UpdateZombieScoreAndSetStatusNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.ErrorIs(t, s.UpdateZombieScore(ctx, "missing", 10, time.Now()), bq.ErrNotFound)
	assert.ErrorIs(t, s.SetStatus(ctx, "missing", "confirmed"), bq.ErrNotFound)
}

func TestStore_InsertNudgeIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	subID := domain.SubscriptionID("u1", "peloton")
	n := domain.Nudge{
		NudgeID:        domain.ZombieNudgeID(subID),
		UserID:         "u1",
		SubscriptionID: subID,
		Kind:           domain.NudgeKindZombieSubscription,
		Title:          "Still using Peloton?",
		Body:           "You have not used Peloton in 90 days.",
		Score:          97.5,
		CreatedAt:      time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC),
	}

	inserted, err := s.InsertNudgeIfAbsent(ctx, bq.NewNudgeRow(n))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertNudgeIfAbsent(ctx, bq.NewNudgeRow(n))
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := s.ListNudges(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got := rows[0].ToDomain()
	assert.Equal(t, subID, got.SubscriptionID)
	assert.Equal(t, 97.5, got.Score)
}
