// Package sqlite is a single-file implementation of the subscription store
// for local runs and tests. It speaks the same row types as the BigQuery
// repository.
package sqlite

import (
	"context"
	"fmt"
	"time"

	bq "github.com/saveplus/saveplus/internal/bigquery"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the gorm/sqlite implementation of bq.Store.
type Store struct {
	db *gorm.DB
}

var _ bq.Store = (*Store)(nil)

// Open opens (creating if needed) the database at dsn and migrates the schema.
// Use "file::memory:" or a "file:name?mode=memory" DSN for a throwaway store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: opening %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: underlying db: %w", err)
	}
	// in-memory databases are per connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&transactionModel{}, &subscriptionModel{}, &nudgeModel{}); err != nil {
		return nil, fmt.Errorf("sqlite.Open: migrating: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertTransactions inserts a batch of rows. Rows whose transaction_id
// already exists are ignored so re-running an ingest is harmless.
func (s *Store) InsertTransactions(ctx context.Context, rows []*bq.TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]transactionModel, 0, len(rows))
	for _, r := range rows {
		models = append(models, toTransactionModel(r))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(models, 500).Error
	if err != nil {
		return fmt.Errorf("InsertTransactions: %w", err)
	}
	return nil
}

// QueryUserTransactions returns a user's transactions in [startDate, endDate].
// Rows with no date are returned as well; callers skip them on conversion.
func (s *Store) QueryUserTransactions(ctx context.Context, userID string, startDate, endDate time.Time) ([]*bq.TransactionRow, error) {
	var models []transactionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("(transaction_date IS NULL OR (transaction_date >= ? AND transaction_date <= ?))", formatDate(startDate), formatDate(endDate)).
		Order("transaction_date, transaction_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("QueryUserTransactions: %w", err)
	}

	rows := make([]*bq.TransactionRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.row())
	}
	return rows, nil
}

// ListActiveUserIDs returns users with a transaction on or after since.
func (s *Store) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&transactionModel{}).
		Distinct("user_id").
		Where("transaction_date >= ? AND user_id <> ''", formatDate(since)).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ListActiveUserIDs: %w", err)
	}
	return ids, nil
}

// UpsertCandidates writes one user's candidates in a single transaction.
// On (user_id, merchant_key) conflict only detector columns are replaced.
func (s *Store) UpsertCandidates(ctx context.Context, userID string, rows []*bq.SubscriptionRow) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	models := make([]subscriptionModel, 0, len(rows))
	for _, r := range rows {
		if r.UserID != userID {
			return fmt.Errorf("UpsertCandidates: row %s belongs to user %q, not %q", r.SubscriptionID, r.UserID, userID)
		}
		m := toSubscriptionModel(r)
		// status and zombie state are never set from detector output
		m.Status = "detected"
		m.ZombieScore, m.ZombieScoredTS, m.ZombieFlaggedTS = nil, nil, nil
		created, updated := r.WriteTimes(now)
		m.CreatedTS, m.UpdatedTS = created, &updated
		models = append(models, m)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "merchant_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"merchant",
				"frequency",
				"average_amount_cents",
				"confidence",
				"next_expected_date",
				"first_seen_date",
				"last_charge_date",
				"charge_count",
				"updated_ts",
			}),
		}).Create(&models).Error
	})
	if err != nil {
		return fmt.Errorf("UpsertCandidates: %w", err)
	}
	return nil
}

// ListSubscriptions returns all of a user's subscriptions ordered by merchant key.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error) {
	return s.listSubscriptions(ctx, userID, "")
}

// ListConfirmedSubscriptions returns a user's confirmed subscriptions.
func (s *Store) ListConfirmedSubscriptions(ctx context.Context, userID string) ([]*bq.SubscriptionRow, error) {
	return s.listSubscriptions(ctx, userID, "confirmed")
}

func (s *Store) listSubscriptions(ctx context.Context, userID, status string) ([]*bq.SubscriptionRow, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var models []subscriptionModel
	if err := q.Order("merchant_key").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("ListSubscriptions: %w", err)
	}

	rows := make([]*bq.SubscriptionRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.row())
	}
	return rows, nil
}

// UpdateZombieScore stores the latest score without touching the flag.
func (s *Store) UpdateZombieScore(ctx context.Context, subscriptionID string, score float64, scoredAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{
			"zombie_score":     score,
			"zombie_scored_ts": scoredAt,
		})
	if res.Error != nil {
		return fmt.Errorf("UpdateZombieScore: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("UpdateZombieScore: %s: %w", subscriptionID, bq.ErrNotFound)
	}
	return nil
}

// MarkZombieFlagged sets zombie_flagged_ts only while it is NULL.
func (s *Store) MarkZombieFlagged(ctx context.Context, subscriptionID string, score float64, flaggedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("subscription_id = ? AND zombie_flagged_ts IS NULL", subscriptionID).
		Updates(map[string]any{
			"zombie_flagged_ts": flaggedAt,
			"zombie_score":      score,
			"zombie_scored_ts":  flaggedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("MarkZombieFlagged: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetStatus records the user's decision on a subscription.
func (s *Store) SetStatus(ctx context.Context, subscriptionID, status string) error {
	res := s.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{
			"status":     status,
			"updated_ts": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("SetStatus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("SetStatus: %s: %w", subscriptionID, bq.ErrNotFound)
	}
	return nil
}

// InsertNudgeIfAbsent inserts the nudge unless its ID is already stored.
func (s *Store) InsertNudgeIfAbsent(ctx context.Context, row *bq.NudgeRow) (bool, error) {
	if row == nil || row.NudgeID == "" {
		return false, fmt.Errorf("InsertNudgeIfAbsent: nudge_id cannot be empty")
	}
	m := toNudgeModel(row)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "nudge_id"}}, DoNothing: true}).
		Create(&m)
	if res.Error != nil {
		return false, fmt.Errorf("InsertNudgeIfAbsent: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListNudges returns a user's nudges, newest first.
func (s *Store) ListNudges(ctx context.Context, userID string) ([]*bq.NudgeRow, error) {
	var models []nudgeModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_ts DESC, nudge_id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("ListNudges: %w", err)
	}

	rows := make([]*bq.NudgeRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, m.row())
	}
	return rows, nil
}
