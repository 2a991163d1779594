package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const rolloverTimeout = 2 * time.Minute

// RolloverResult counts the rows touched by one sweep.
type RolloverResult struct {
	Initialized int64 // Free rows that received their first period.
	Advanced    int64 // Free rows moved to a new monthly period.
	Reset       int64 // Paid rows whose elapsed period was reset.
}

// Total returns the number of rows touched.
func (r RolloverResult) Total() int64 {
	return r.Initialized + r.Advanced + r.Reset
}

// Rollover resets usage counters whose period has elapsed. Free-tier periods
// advance one month at a time; paid periods are owned by the billing provider
// and only the counter is reset, once per period whether the sweep runs before
// or after the renewal event.
func Rollover(ctx context.Context, db *gorm.DB, now time.Time) (RolloverResult, error) {
	var result RolloverResult
	if db == nil {
		return result, fmt.Errorf("billing: rollover: nil db")
	}
	now = now.UTC()
	db = db.WithContext(ctx)

	monthLater := now.AddDate(0, 1, 0)
	res := db.Model(&models.Subscription{}).
		Where("tier_id = ? AND period_end IS NULL", models.FreeTierID).
		Updates(map[string]any{
			"period_start": now,
			"period_end":   monthLater,
			"updated_at":   now,
		})
	if res.Error != nil {
		return result, fmt.Errorf("billing: rollover: initialize free periods: %w", res.Error)
	}
	result.Initialized = res.RowsAffected

	var due []models.Subscription
	if errFind := db.Where("tier_id = ? AND period_end <= ?", models.FreeTierID, now).
		Find(&due).Error; errFind != nil {
		return result, fmt.Errorf("billing: rollover: list free periods: %w", errFind)
	}
	for _, row := range due {
		start := *row.PeriodEnd
		end := start.AddDate(0, 1, 0)
		for !end.After(now) {
			start, end = end, end.AddDate(0, 1, 0)
		}
		// The period_end guard makes a concurrent sweep a no-op.
		res = db.Model(&models.Subscription{}).
			Where("id = ? AND period_end = ?", row.ID, *row.PeriodEnd).
			Updates(map[string]any{
				"usage_count":    0,
				"usage_reset_at": now,
				"period_start":   start,
				"period_end":     end,
				"updated_at":     now,
			})
		if res.Error != nil {
			return result, fmt.Errorf("billing: rollover: advance period for %s: %w", row.UserID, res.Error)
		}
		result.Advanced += res.RowsAffected
	}

	// A paid row is due once its stored period has elapsed, or once a renewal
	// event has already moved it into a period that began after the last reset.
	res = db.Model(&models.Subscription{}).
		Where("tier_id <> ?", models.FreeTierID).
		Where("((period_end <= ? AND (usage_reset_at IS NULL OR usage_reset_at < period_end))"+
			" OR (period_start <= ? AND (usage_reset_at IS NULL OR usage_reset_at < period_start)))", now, now).
		Updates(map[string]any{
			"usage_count":    0,
			"usage_reset_at": now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return result, fmt.Errorf("billing: rollover: reset paid periods: %w", res.Error)
	}
	result.Reset = res.RowsAffected
	return result, nil
}

// RolloverScheduler runs Rollover on a cron schedule.
type RolloverScheduler struct {
	db       *gorm.DB
	schedule string
	now      func() time.Time
}

// NewRolloverScheduler constructs a scheduler. schedule accepts the standard
// five-field cron syntax and descriptors such as "@every 15m".
func NewRolloverScheduler(db *gorm.DB, schedule string) *RolloverScheduler {
	if db == nil {
		return nil
	}
	return &RolloverScheduler{db: db, schedule: strings.TrimSpace(schedule), now: time.Now}
}

// Start registers the sweep and runs the scheduler until ctx is done.
func (s *RolloverScheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, errAdd := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); errAdd != nil {
		return fmt.Errorf("billing: rollover schedule %q: %w", s.schedule, errAdd)
	}

	c.Start()
	log.Infof("usage rollover scheduler started (schedule=%s)", s.schedule)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// RunOnce performs one sweep and logs the result.
func (s *RolloverScheduler) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, rolloverTimeout)
	defer cancel()
	result, err := Rollover(runCtx, s.db, s.now())
	if err != nil {
		log.WithError(err).Warn("usage rollover failed")
		return
	}
	if result.Total() > 0 {
		log.WithFields(log.Fields{
			"initialized": result.Initialized,
			"advanced":    result.Advanced,
			"reset":       result.Reset,
		}).Info("usage rollover completed")
	}
}
