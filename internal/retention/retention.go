package retention

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/autopilot-ops/extraction-store/internal/archive"
	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/autopilot-ops/extraction-store/internal/observability"
)

// Config holds the retention windows. A row never becomes eligible for
// deletion before its window elapses.
type Config struct {
	SessionWindow time.Duration
	CacheWindow   time.Duration
	MetricsWindow time.Duration
	Interval      time.Duration
}

// Manager prunes aged rows on a fixed schedule, independent of request
// traffic. Sessions age by created_at, cache entries by last_accessed_at
// (recency of use, not creation), metrics by calendar day. The three passes
// are independent; a session whose content hash points at an already-evicted
// cache entry is a valid state.
type Manager struct {
	logger   *logrus.Logger
	db       *gorm.DB
	archiver archive.Archiver
	cfg      Config
	metrics  *observability.Metrics
}

func New(logger *logrus.Logger, db *gorm.DB, archiver archive.Archiver, cfg Config, metrics *observability.Metrics) *Manager {
	return &Manager{
		logger:   logger,
		db:       db,
		archiver: archiver,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// Summary reports one sweep.
type Summary struct {
	SessionsDeleted int64 `json:"sessions_deleted"`
	CacheDeleted    int64 `json:"cache_deleted"`
	MetricsDeleted  int64 `json:"metrics_deleted"`
	Failures        int64 `json:"failures"`
}

func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	logEntry := m.logger.WithField("component", "retention_manager")
	logEntry.Info("Starting retention manager")

	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx, time.Now().UTC())
		case <-ctx.Done():
			logEntry.Info("Stopping retention manager")
			return
		}
	}
}

// RunOnce performs one full sweep. Per-row failures are logged and skipped
// rather than aborting the pass; one bad row never blocks cleanup of the rest.
func (m *Manager) RunOnce(ctx context.Context, now time.Time) Summary {
	log := m.logger.WithFields(logrus.Fields{
		"component": "retention_manager",
		"operation": "sweep",
	})

	var sum Summary
	m.pruneSessions(ctx, now, log, &sum)
	m.pruneCache(ctx, now, log, &sum)
	m.pruneMetrics(ctx, now, log, &sum)

	log.WithFields(logrus.Fields{
		"sessions_deleted": sum.SessionsDeleted,
		"cache_deleted":    sum.CacheDeleted,
		"metrics_deleted":  sum.MetricsDeleted,
		"failures":         sum.Failures,
	}).Info("Retention sweep completed")
	return sum
}

func (m *Manager) pruneSessions(ctx context.Context, now time.Time, log *logrus.Entry, sum *Summary) {
	cutoff := now.Add(-m.cfg.SessionWindow)

	var batch []models.ProcessingSession
	res := m.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				rec := batch[i]
				if m.archiver != nil {
					if err := m.archiver.ArchiveSession(ctx, &rec); err != nil {
						// Audit before delete: an unarchived row stays until
						// the next sweep.
						log.WithFields(logrus.Fields{"session_id": rec.SessionID, "error": err}).Error("Failed to archive session")
						m.metrics.RetentionErrorsTotal.WithLabelValues("sessions").Inc()
						sum.Failures++
						continue
					}
				}
				if err := m.db.WithContext(ctx).Delete(&models.ProcessingSession{}, rec.ID).Error; err != nil {
					log.WithFields(logrus.Fields{"session_id": rec.SessionID, "error": err}).Error("Failed to delete session")
					m.metrics.RetentionErrorsTotal.WithLabelValues("sessions").Inc()
					sum.Failures++
					continue
				}
				m.metrics.RetentionDeletedTotal.WithLabelValues("sessions").Inc()
				sum.SessionsDeleted++
			}
			return nil
		})
	if res.Error != nil {
		log.WithError(res.Error).Error("Session retention query failed")
		sum.Failures++
	}
}

func (m *Manager) pruneCache(ctx context.Context, now time.Time, log *logrus.Entry, sum *Summary) {
	cutoff := now.Add(-m.cfg.CacheWindow)

	var batch []models.CacheEntry
	res := m.db.WithContext(ctx).
		Where("last_accessed_at < ?", cutoff).
		FindInBatches(&batch, 200, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				entry := batch[i]
				if err := m.db.WithContext(ctx).Delete(&models.CacheEntry{}, "content_hash = ?", entry.ContentHash).Error; err != nil {
					log.WithFields(logrus.Fields{"content_hash": entry.ContentHash, "error": err}).Error("Failed to delete cache entry")
					m.metrics.RetentionErrorsTotal.WithLabelValues("cache").Inc()
					sum.Failures++
					continue
				}
				m.metrics.RetentionDeletedTotal.WithLabelValues("cache").Inc()
				sum.CacheDeleted++
			}
			return nil
		})
	if res.Error != nil {
		log.WithError(res.Error).Error("Cache retention query failed")
		sum.Failures++
	}
}

func (m *Manager) pruneMetrics(ctx context.Context, now time.Time, log *logrus.Entry, sum *Summary) {
	cutoff := models.DateKey(now.Add(-m.cfg.MetricsWindow))

	res := m.db.WithContext(ctx).
		Where("date < ?", cutoff).
		Delete(&models.DailyMetrics{})
	if res.Error != nil {
		log.WithError(res.Error).Error("Metrics retention delete failed")
		m.metrics.RetentionErrorsTotal.WithLabelValues("metrics").Inc()
		sum.Failures++
		return
	}
	m.metrics.RetentionDeletedTotal.WithLabelValues("metrics").Add(float64(res.RowsAffected))
	sum.MetricsDeleted += res.RowsAffected
}
