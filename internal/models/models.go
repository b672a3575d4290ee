package models

import (
	"time"
)

// CacheEntry is one content-addressed extraction result. The content hash is
// the sha256 of the source document bytes; the result payload is stored
// verbatim. Access fields are touched on every hit.
type CacheEntry struct {
	ContentHash    string    `gorm:"primaryKey;type:varchar(64);not null"`
	Result         []byte    `gorm:"type:jsonb;not null"`
	Confidence     *float64  `gorm:"type:double precision"`
	CreatedAt      time.Time `gorm:"index;not null"`
	LastAccessedAt time.Time `gorm:"index;not null"`
	AccessCount    int64     `gorm:"not null;default:1"`
}

// ProcessingSession is one row of the append-only ledger: a single processing
// attempt, whether it hit the cache, computed fresh, or failed. Rows are never
// updated; only retention deletes them.
type ProcessingSession struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	SessionID     string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	FileName      string    `gorm:"type:varchar(255);not null"`
	FileSize      int64     `gorm:"not null"`
	ContentHash   *string   `gorm:"type:varchar(64);index"`
	Success       bool      `gorm:"not null;index"`
	CacheHit      bool      `gorm:"not null;default:false"`
	TicketCreated bool      `gorm:"not null;default:false"`
	TicketKey     *string   `gorm:"type:varchar(50)"`
	QualityScore  *float64  `gorm:"type:double precision"`
	LatencyMs     int64     `gorm:"not null"`
	ErrorMessage  *string   `gorm:"type:text"`
	ClientIP      *string   `gorm:"type:varchar(45)"`
	UserAgent     *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index;not null"`
}

// DailyMetrics is the derived per-day rollup over the session ledger. One row
// per UTC calendar day, and no row at all for a day without sessions.
// QualitySamples counts the sessions that carried a quality score, so the
// running average can be updated incrementally.
type DailyMetrics struct {
	Date            string  `gorm:"primaryKey;type:varchar(10)"`
	TotalCount      int64   `gorm:"not null;default:0"`
	SuccessCount    int64   `gorm:"not null;default:0"`
	TicketCount     int64   `gorm:"not null;default:0"`
	AvgQualityScore float64 `gorm:"not null;default:0"`
	QualitySamples  int64   `gorm:"not null;default:0"`
	AvgLatencyMs    float64 `gorm:"not null;default:0"`
	TotalCostEur    float64 `gorm:"not null;default:0"`
}

func (CacheEntry) TableName() string {
	return "extraction_cache"
}

func (ProcessingSession) TableName() string {
	return "processing_sessions"
}

func (DailyMetrics) TableName() string {
	return "daily_metrics"
}

// DateKey maps a timestamp to its UTC calendar day, the daily_metrics key.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
