package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/autopilot-ops/extraction-store/internal/observability"
	"github.com/autopilot-ops/extraction-store/internal/retention"
	"github.com/autopilot-ops/extraction-store/internal/store"
)

// Outcome is what the external extraction service reports for one
// computation.
type Outcome struct {
	Result       []byte
	Confidence   *float64
	Success      bool
	LatencyMs    int64
	ErrorMessage string
}

// Extractor is the external extraction service.
type Extractor interface {
	ComputeExtraction(ctx context.Context, content []byte) (*Outcome, error)
}

// SideEffector is the external workflow integration. An empty ref means no
// side effect was created.
type SideEffector interface {
	CreateSideEffect(ctx context.Context, result []byte) (string, error)
}

// ComputeFunc produces an extraction outcome for a cache miss.
type ComputeFunc func(ctx context.Context) (*Outcome, error)

// Result is a cache lookup or computation result as seen by callers.
type Result struct {
	Payload      []byte
	Confidence   *float64
	Cached       bool
	Success      bool
	LatencyMs    int64
	ErrorMessage string
}

// Options configures optional collaborators of the service.
type Options struct {
	Extractor    Extractor
	SideEffector SideEffector

	// MinCacheConfidence is the quality floor below which successful results
	// are served but not cached.
	MinCacheConfidence float64
}

// Service is the facade over the cache, the ledger, the aggregator and the
// retention manager.
type Service struct {
	cache      *store.CacheStore
	ledger     *store.SessionLedger
	aggregator *store.MetricsAggregator
	janitor    *retention.Manager
	opts       Options
	metrics    *observability.Metrics
	group      singleflight.Group
	log        *logrus.Entry
}

func NewService(logger *logrus.Logger, cache *store.CacheStore, ledger *store.SessionLedger, aggregator *store.MetricsAggregator, janitor *retention.Manager, metrics *observability.Metrics, opts Options) *Service {
	return &Service{
		cache:      cache,
		ledger:     ledger,
		aggregator: aggregator,
		janitor:    janitor,
		opts:       opts,
		metrics:    metrics,
		log:        logger.WithField("component", "extraction_service"),
	}
}

// HashContent derives the cache key for a document.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LookupOrCompute probes the cache for contentHash and, on a miss, runs
// compute at most once across concurrent callers for the same hash. A
// successful fresh result is stored unless its confidence falls below the
// quality floor; when another writer stored a divergent result first, the
// stored entry wins and is returned.
func (s *Service) LookupOrCompute(ctx context.Context, contentHash string, compute ComputeFunc) (*Result, error) {
	entry, err := s.cache.Get(ctx, contentHash)
	if err == nil {
		s.metrics.CacheHitsTotal.Inc()
		return &Result{
			Payload:    entry.Result,
			Confidence: entry.Confidence,
			Cached:     true,
			Success:    true,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	s.metrics.CacheMissesTotal.Inc()

	v, err, _ := s.group.Do(contentHash, func() (interface{}, error) {
		start := time.Now()
		outcome, err := compute(ctx)
		s.metrics.ComputeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if !outcome.Success {
			return &Result{
				LatencyMs:    outcome.LatencyMs,
				ErrorMessage: outcome.ErrorMessage,
			}, nil
		}
		if outcome.Confidence != nil && *outcome.Confidence < s.opts.MinCacheConfidence {
			s.metrics.CachePutsTotal.WithLabelValues("rejected").Inc()
			return &Result{
				Payload:    outcome.Result,
				Confidence: outcome.Confidence,
				Success:    true,
				LatencyMs:  outcome.LatencyMs,
			}, nil
		}

		stored, err := s.cache.Put(ctx, contentHash, outcome.Result, outcome.Confidence)
		if errors.Is(err, store.ErrConflict) {
			s.metrics.CachePutsTotal.WithLabelValues("conflict").Inc()
			existing, gerr := s.cache.Get(ctx, contentHash)
			if gerr != nil {
				return nil, gerr
			}
			return &Result{
				Payload:    existing.Result,
				Confidence: existing.Confidence,
				Cached:     true,
				Success:    true,
			}, nil
		}
		if err != nil {
			return nil, err
		}
		s.metrics.CachePutsTotal.WithLabelValues("stored").Inc()
		return &Result{
			Payload:    stored.Result,
			Confidence: stored.Confidence,
			Success:    true,
			LatencyMs:  outcome.LatencyMs,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Attempt describes one processing attempt for the ledger. Optional fields
// are the zero value when absent.
type Attempt struct {
	SessionID    string
	FileName     string
	FileSize     int64
	ContentHash  string
	Success      bool
	CacheHit     bool
	TicketKey    string
	QualityScore *float64
	LatencyMs    int64
	ErrorMessage string
	ClientIP     string
	UserAgent    string
	At           time.Time
}

// RecordAttempt appends the attempt to the ledger and folds it into the daily
// rollup. The ledger is authoritative: an aggregation failure is logged and
// repaired later by a rebuild, not surfaced to the caller.
func (s *Service) RecordAttempt(ctx context.Context, a Attempt) (*models.ProcessingSession, error) {
	if a.SessionID == "" {
		a.SessionID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}

	rec := &models.ProcessingSession{
		SessionID:     a.SessionID,
		FileName:      a.FileName,
		FileSize:      a.FileSize,
		ContentHash:   optStr(a.ContentHash),
		Success:       a.Success,
		CacheHit:      a.CacheHit,
		TicketCreated: a.TicketKey != "",
		TicketKey:     optStr(a.TicketKey),
		QualityScore:  a.QualityScore,
		LatencyMs:     a.LatencyMs,
		ErrorMessage:  optStr(a.ErrorMessage),
		ClientIP:      optStr(a.ClientIP),
		UserAgent:     optStr(a.UserAgent),
		CreatedAt:     a.At,
	}

	if err := s.ledger.Append(ctx, rec); err != nil {
		return nil, err
	}
	status := "failure"
	if rec.Success {
		status = "success"
	}
	s.metrics.SessionsRecordedTotal.WithLabelValues(status).Inc()

	if err := s.aggregator.RecordSession(ctx, rec); err != nil {
		s.log.WithError(err).WithField("session_id", rec.SessionID).Warn("Failed to fold session into daily metrics")
	}
	return rec, nil
}

// Dashboard returns the daily rollup for [from, to], most recent day first.
func (s *Service) Dashboard(ctx context.Context, from, to time.Time) ([]models.DailyMetrics, error) {
	return s.aggregator.ReadDashboard(ctx, from, to)
}

// RebuildMetrics recomputes the rollup for [from, to] from the ledger.
func (s *Service) RebuildMetrics(ctx context.Context, from, to time.Time) error {
	return s.aggregator.Rebuild(ctx, from, to)
}

// Sessions lists ledger rows matching the filter.
func (s *Service) Sessions(ctx context.Context, f store.SessionFilter) ([]models.ProcessingSession, error) {
	return s.ledger.Collect(ctx, f)
}

// CacheStats reports cache occupancy.
func (s *Service) CacheStats(ctx context.Context) (*store.CacheStats, error) {
	return s.cache.Stats(ctx)
}

// RunRetention triggers one sweep outside the schedule.
func (s *Service) RunRetention(ctx context.Context, now time.Time) retention.Summary {
	return s.janitor.RunOnce(ctx, now)
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
