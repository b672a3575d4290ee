package store

import (
	"context"
	"iter"
	"time"

	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionLedger is the append-only record of processing attempts. Rows are
// immutable once written; nothing here exposes an update or delete path.
type SessionLedger struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewSessionLedger(logger *logrus.Logger, db *gorm.DB) *SessionLedger {
	return &SessionLedger{
		db:  db,
		log: logger.WithField("component", "session_ledger"),
	}
}

// Append writes one processing attempt. A reused session id fails with
// ErrDuplicateSession and leaves the original row untouched.
func (l *SessionLedger) Append(ctx context.Context, rec *models.ProcessingSession) error {
	if err := validateSession(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return storageErr("session append", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateSession
	}
	return nil
}

func validateSession(rec *models.ProcessingSession) error {
	if rec.SessionID == "" {
		return invalid("sessionId", "must not be empty")
	}
	if len(rec.SessionID) > 64 {
		return invalid("sessionId", "must not exceed 64 characters")
	}
	if rec.FileName == "" {
		return invalid("fileName", "must not be empty")
	}
	if len(rec.FileName) > 255 {
		return invalid("fileName", "must not exceed 255 characters")
	}
	if rec.FileSize < 0 {
		return invalid("fileSize", "must not be negative")
	}
	if rec.LatencyMs < 0 {
		return invalid("latencyMs", "must not be negative")
	}
	if rec.QualityScore != nil && (*rec.QualityScore < 0 || *rec.QualityScore > 1) {
		return invalid("qualityScore", "must be within [0,1]")
	}
	if rec.ContentHash != nil && !contentHashPattern.MatchString(*rec.ContentHash) {
		return invalid("contentHash", "must be a 64-char lowercase hex sha256 digest")
	}
	if rec.TicketCreated && !rec.Success {
		return invalid("ticketCreated", "side effect requires a successful attempt")
	}
	if rec.CacheHit && !rec.Success {
		return invalid("cacheHit", "a cache hit is a successful attempt")
	}
	return nil
}

// SessionFilter narrows a ledger scan. From is inclusive, To exclusive; zero
// values leave the bound open.
type SessionFilter struct {
	ContentHash string
	Success     *bool
	From        time.Time
	To          time.Time
	Limit       int
}

// Query returns the matching sessions ordered by created_at ascending. The
// sequence is lazy and restartable: every range-over re-issues the scan from
// the stored filter, so a consumer can iterate it more than once.
func (l *SessionLedger) Query(ctx context.Context, f SessionFilter) iter.Seq2[models.ProcessingSession, error] {
	return func(yield func(models.ProcessingSession, error) bool) {
		q := l.db.WithContext(ctx).Model(&models.ProcessingSession{}).
			Order("created_at ASC, id ASC")
		if f.ContentHash != "" {
			q = q.Where("content_hash = ?", f.ContentHash)
		}
		if f.Success != nil {
			q = q.Where("success = ?", *f.Success)
		}
		if !f.From.IsZero() {
			q = q.Where("created_at >= ?", f.From)
		}
		if !f.To.IsZero() {
			q = q.Where("created_at < ?", f.To)
		}
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}

		rows, err := q.Rows()
		if err != nil {
			yield(models.ProcessingSession{}, storageErr("session query", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec models.ProcessingSession
			if err := l.db.ScanRows(rows, &rec); err != nil {
				yield(models.ProcessingSession{}, storageErr("session scan", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.ProcessingSession{}, storageErr("session query", err))
		}
	}
}

// Collect drains a query into a slice, stopping at the first error.
func (l *SessionLedger) Collect(ctx context.Context, f SessionFilter) ([]models.ProcessingSession, error) {
	var out []models.ProcessingSession
	for rec, err := range l.Query(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
