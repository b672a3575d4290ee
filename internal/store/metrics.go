package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetricsAggregator folds session ledger rows into the daily_metrics rollup.
// Increments for the same date serialize on a per-date mutex; different dates
// never contend.
type MetricsAggregator struct {
	db      *gorm.DB
	log     *logrus.Entry
	costEur float64

	mu    sync.Mutex
	dates map[string]*sync.Mutex
}

// NewMetricsAggregator builds an aggregator. costEur is the estimated cost of
// one fresh extraction; cache hits and failures accrue nothing.
func NewMetricsAggregator(logger *logrus.Logger, db *gorm.DB, costEur float64) *MetricsAggregator {
	return &MetricsAggregator{
		db:      db,
		log:     logger.WithField("component", "metrics_aggregator"),
		costEur: costEur,
		dates:   make(map[string]*sync.Mutex),
	}
}

func (a *MetricsAggregator) dateLock(date string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.dates[date]
	if !ok {
		l = &sync.Mutex{}
		a.dates[date] = l
	}
	return l
}

// RecordSession applies one ledger row to its day's rollup, creating the row
// on the day's first session. Averages use the incremental-mean update so
// long-running aggregates do not drift.
func (a *MetricsAggregator) RecordSession(ctx context.Context, rec *models.ProcessingSession) error {
	date := models.DateKey(rec.CreatedAt)
	lock := a.dateLock(date)
	lock.Lock()
	defer lock.Unlock()

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.DailyMetrics
		err := tx.Where("date = ?", date).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.DailyMetrics{Date: date}
		case err != nil:
			return storageErr("metrics read", err)
		}

		a.applySession(&row, rec)

		if err := tx.Save(&row).Error; err != nil {
			return storageErr("metrics write", err)
		}
		return nil
	})
}

func (a *MetricsAggregator) applySession(row *models.DailyMetrics, rec *models.ProcessingSession) {
	row.TotalCount++
	row.AvgLatencyMs += (float64(rec.LatencyMs) - row.AvgLatencyMs) / float64(row.TotalCount)
	if rec.Success {
		row.SuccessCount++
		if !rec.CacheHit {
			row.TotalCostEur += a.costEur
		}
	}
	if rec.TicketCreated {
		row.TicketCount++
	}
	if rec.QualityScore != nil {
		row.QualitySamples++
		row.AvgQualityScore += (*rec.QualityScore - row.AvgQualityScore) / float64(row.QualitySamples)
	}
}

// Rebuild recomputes the rollup for every day in [from, to] from scratch by
// replaying the ledger. The delete and replay share one transaction, so the
// result is the same no matter how often it runs; an operator uses it to
// repair drift after a manual ledger edit.
func (a *MetricsAggregator) Rebuild(ctx context.Context, from, to time.Time) error {
	fromKey := models.DateKey(from)
	toKey := models.DateKey(to)
	if toKey < fromKey {
		return invalid("dateRange", "end of range precedes start")
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("date >= ? AND date <= ?", fromKey, toKey).
			Delete(&models.DailyMetrics{}).Error; err != nil {
			return storageErr("metrics delete", err)
		}

		rebuilt := make(map[string]*models.DailyMetrics)
		var batch []models.ProcessingSession
		res := tx.Model(&models.ProcessingSession{}).
			Where("created_at >= ? AND created_at < ?", dayStart(from), dayStart(to).Add(24*time.Hour)).
			Order("created_at ASC, id ASC").
			FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
				for i := range batch {
					key := models.DateKey(batch[i].CreatedAt)
					row, ok := rebuilt[key]
					if !ok {
						row = &models.DailyMetrics{Date: key}
						rebuilt[key] = row
					}
					a.applySession(row, &batch[i])
				}
				return nil
			})
		if res.Error != nil {
			return storageErr("metrics replay", res.Error)
		}

		keys := make([]string, 0, len(rebuilt))
		for key := range rebuilt {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := tx.Create(rebuilt[key]).Error; err != nil {
				return storageErr("metrics write", err)
			}
		}
		return nil
	})
}

// ReadDashboard returns the rollup rows in [from, to], most recent day first.
// Zero bounds leave the range open on that side.
func (a *MetricsAggregator) ReadDashboard(ctx context.Context, from, to time.Time) ([]models.DailyMetrics, error) {
	q := a.db.WithContext(ctx).Order("date DESC")
	if !from.IsZero() {
		q = q.Where("date >= ?", models.DateKey(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", models.DateKey(to))
	}

	var out []models.DailyMetrics
	if err := q.Find(&out).Error; err != nil {
		return nil, storageErr("dashboard read", err)
	}
	return out, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
