package extraction

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/autopilot-ops/extraction-store/internal/observability"
	"github.com/autopilot-ops/extraction-store/internal/retention"
	"github.com/autopilot-ops/extraction-store/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.CacheEntry{}, &models.ProcessingSession{}, &models.DailyMetrics{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, opts Options) (*Service, *store.CacheStore, *gorm.DB) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := newTestDB(t)
	metrics := observability.Init()
	cache := store.NewCacheStore(logger, db)
	ledger := store.NewSessionLedger(logger, db)
	aggregator := store.NewMetricsAggregator(logger, db, 0.08)
	janitor := retention.New(logger, db, nil, retention.Config{
		SessionWindow: 30 * 24 * time.Hour,
		CacheWindow:   7 * 24 * time.Hour,
		MetricsWindow: 365 * 24 * time.Hour,
		Interval:      24 * time.Hour,
	}, metrics)

	return NewService(logger, cache, ledger, aggregator, janitor, metrics, opts), cache, db
}

func successOutcome(payload string, confidence float64) *Outcome {
	c := confidence
	return &Outcome{
		Result:     []byte(payload),
		Confidence: &c,
		Success:    true,
		LatencyMs:  250,
	}
}

func TestLookupOrComputeMissThenHit(t *testing.T) {
	svc, cache, _ := newTestService(t, Options{MinCacheConfidence: 0.5})
	ctx := context.Background()
	hash := HashContent([]byte("contract body"))

	var calls atomic.Int32
	compute := func(ctx context.Context) (*Outcome, error) {
		calls.Add(1)
		return successOutcome(`{"title":"A"}`, 0.9), nil
	}

	res, err := svc.LookupOrCompute(ctx, hash, compute)
	if err != nil {
		t.Fatalf("LookupOrCompute() error = %v", err)
	}
	if res.Cached || !res.Success {
		t.Fatalf("fresh result flags = %+v", res)
	}

	res, err = svc.LookupOrCompute(ctx, hash, compute)
	if err != nil {
		t.Fatalf("second LookupOrCompute() error = %v", err)
	}
	if !res.Cached {
		t.Fatalf("second call missed the cache")
	}
	if !bytes.Equal(res.Payload, []byte(`{"title":"A"}`)) {
		t.Fatalf("cached payload = %s", res.Payload)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("compute calls = %d, want 1", got)
	}

	entry, err := cache.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Created with 1, one lookup hit, plus this probe.
	if entry.AccessCount != 3 {
		t.Fatalf("access count = %d, want 3", entry.AccessCount)
	}
}

func TestLookupOrComputeSingleFlight(t *testing.T) {
	svc, _, _ := newTestService(t, Options{MinCacheConfidence: 0.5})
	ctx := context.Background()
	hash := HashContent([]byte("contract body"))

	var calls atomic.Int32
	compute := func(ctx context.Context) (*Outcome, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return successOutcome(`{"title":"A"}`, 0.9), nil
	}

	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.LookupOrCompute(ctx, hash, compute)
			if err != nil {
				t.Errorf("LookupOrCompute() error = %v", err)
				return
			}
			if !bytes.Equal(res.Payload, []byte(`{"title":"A"}`)) {
				t.Errorf("payload = %s", res.Payload)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute calls = %d, want 1 (duplicate concurrent misses)", got)
	}
}

func TestLookupOrComputeConflictYieldsStoredEntry(t *testing.T) {
	svc, cache, _ := newTestService(t, Options{MinCacheConfidence: 0.5})
	ctx := context.Background()
	hash := HashContent([]byte("contract body"))

	// A concurrent writer lands a different result between our miss and put.
	compute := func(ctx context.Context) (*Outcome, error) {
		if _, err := cache.Put(ctx, hash, []byte(`{"title":"A"}`), nil); err != nil {
			t.Fatalf("interloper Put() error = %v", err)
		}
		return successOutcome(`{"title":"B"}`, 0.9), nil
	}

	res, err := svc.LookupOrCompute(ctx, hash, compute)
	if err != nil {
		t.Fatalf("LookupOrCompute() error = %v", err)
	}
	if !res.Cached {
		t.Fatalf("conflict result not marked cached")
	}
	if !bytes.Equal(res.Payload, []byte(`{"title":"A"}`)) {
		t.Fatalf("conflict resolved to %s, want the stored entry", res.Payload)
	}
}

func TestLookupOrComputeLowConfidenceNotCached(t *testing.T) {
	svc, cache, _ := newTestService(t, Options{MinCacheConfidence: 0.5})
	ctx := context.Background()
	hash := HashContent([]byte("contract body"))

	compute := func(ctx context.Context) (*Outcome, error) {
		return successOutcome(`{"title":"A"}`, 0.3), nil
	}

	res, err := svc.LookupOrCompute(ctx, hash, compute)
	if err != nil {
		t.Fatalf("LookupOrCompute() error = %v", err)
	}
	if !res.Success || res.Cached {
		t.Fatalf("low-confidence result flags = %+v", res)
	}

	if _, err := cache.Get(ctx, hash); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("low-confidence result was cached: err = %v", err)
	}
}

func TestLookupOrComputeFailedOutcomeNotCached(t *testing.T) {
	svc, cache, _ := newTestService(t, Options{MinCacheConfidence: 0.5})
	ctx := context.Background()
	hash := HashContent([]byte("contract body"))

	compute := func(ctx context.Context) (*Outcome, error) {
		return &Outcome{Success: false, LatencyMs: 40, ErrorMessage: "unreadable pdf"}, nil
	}

	res, err := svc.LookupOrCompute(ctx, hash, compute)
	if err != nil {
		t.Fatalf("LookupOrCompute() error = %v", err)
	}
	if res.Success || res.ErrorMessage != "unreadable pdf" {
		t.Fatalf("failed outcome = %+v", res)
	}

	if _, err := cache.Get(ctx, hash); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("failed outcome was cached: err = %v", err)
	}
}

func TestRecordAttemptMintsSessionIDAndFoldsMetrics(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rec, err := svc.RecordAttempt(ctx, Attempt{
		FileName:  "contract.pdf",
		FileSize:  2048,
		Success:   true,
		LatencyMs: 120,
		At:        at,
	})
	if err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
	if rec.SessionID == "" {
		t.Fatalf("session id not minted")
	}

	rows, err := svc.Dashboard(ctx, at, at)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(rows) != 1 || rows[0].TotalCount != 1 {
		t.Fatalf("dashboard after attempt = %+v", rows)
	}
}

func TestRecordAttemptDuplicateID(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	attempt := Attempt{SessionID: "s-1", FileName: "a.pdf", FileSize: 1, Success: true, LatencyMs: 10}
	if _, err := svc.RecordAttempt(ctx, attempt); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}
	if _, err := svc.RecordAttempt(ctx, attempt); !errors.Is(err, store.ErrDuplicateSession) {
		t.Fatalf("duplicate RecordAttempt() error = %v, want ErrDuplicateSession", err)
	}
}
