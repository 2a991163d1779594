// Package usage records completed generations: the shared-quota counter and
// the per-user history.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const persistTimeout = 5 * time.Second

// Outcome labels reported to an Observer.
const (
	OutcomeIncremented  = "incremented"
	OutcomeAtQuota      = "at_quota"
	OutcomeCounterError = "counter_error"
	OutcomeHistoryError = "history_error"
)

// Observer receives recorder outcomes.
type Observer interface {
	ObserveUsage(outcome string)
}

// Entry describes one successful generation.
type Entry struct {
	UserID     string
	UseShared  bool
	TemplateID string
	ModelID    string
	Topic      string
	Output     string
}

// Result reports what Record persisted.
type Result struct {
	Incremented  bool
	HistorySaved bool
}

// Recorder persists usage for completed generations.
type Recorder struct {
	db       *gorm.DB
	observer Observer
	now      func() time.Time
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB, observer Observer) *Recorder {
	return &Recorder{db: db, observer: observer, now: func() time.Time { return time.Now().UTC() }}
}

// Record increments the shared counter when the shared credential was used and
// appends a history record. Failures are logged and never returned: the
// generation has already been served.
func (r *Recorder) Record(ctx context.Context, entry Entry) Result {
	var result Result
	if r == nil || r.db == nil {
		return result
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	fields := log.Fields{"user_id": entry.UserID, "model_id": entry.ModelID}

	if entry.UseShared {
		incremented, errIncrement := r.increment(dbCtx, entry.UserID)
		switch {
		case errIncrement != nil:
			log.WithError(errIncrement).WithFields(fields).Warn("usage: failed to increment shared usage")
			r.observe(OutcomeCounterError)
		case !incremented:
			log.WithFields(fields).Warn("usage: shared usage already at quota, counter not incremented")
			r.observe(OutcomeAtQuota)
		default:
			result.Incremented = true
			r.observe(OutcomeIncremented)
		}
	}

	history := models.HistoryRecord{
		UserID:     entry.UserID,
		TemplateID: strings.TrimSpace(entry.TemplateID),
		ModelID:    entry.ModelID,
		InputTopic: entry.Topic,
		OutputText: entry.Output,
		CreatedAt:  r.now(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&history).Error; errCreate != nil {
		log.WithError(errCreate).WithFields(fields).Warn("usage: failed to save history")
		r.observe(OutcomeHistoryError)
	} else {
		result.HistorySaved = true
	}
	return result
}

// increment ensures the user has a subscription row, then bumps usage_count by
// one only while it is below the tier quota.
func (r *Recorder) increment(ctx context.Context, userID string) (bool, error) {
	now := r.now()
	periodEnd := now.AddDate(0, 1, 0)
	var incremented bool
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Subscription{
			UserID:      userID,
			TierID:      models.FreeTierID,
			Status:      models.SubscriptionStatusActive,
			PeriodStart: &now,
			PeriodEnd:   &periodEnd,
		}
		if errCreate := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&row).Error; errCreate != nil {
			return fmt.Errorf("ensure subscription: %w", errCreate)
		}

		res := tx.Model(&models.Subscription{}).
			Where("user_id = ?", userID).
			Where("usage_count < (SELECT monthly_quota FROM tiers WHERE tiers.id = subscriptions.tier_id)").
			Updates(map[string]any{
				"usage_count": gorm.Expr("usage_count + ?", 1),
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("increment usage: %w", res.Error)
		}
		incremented = res.RowsAffected > 0
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	return incremented, nil
}

// History returns the user's most recent history records, newest first.
func History(ctx context.Context, db *gorm.DB, userID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.HistoryRecord
	if errFind := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("usage: list history: %w", errFind)
	}
	return rows, nil
}

func (r *Recorder) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveUsage(outcome)
	}
}
