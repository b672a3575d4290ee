package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autopilot-ops/extraction-store/internal/extraction"
	"github.com/autopilot-ops/extraction-store/internal/models"
	"github.com/autopilot-ops/extraction-store/internal/observability"
	"github.com/autopilot-ops/extraction-store/internal/retention"
	"github.com/autopilot-ops/extraction-store/internal/store"
)

func newTestRouter(t *testing.T) (*mux.Router, *extraction.Service, *gorm.DB) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

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
	svc := extraction.NewService(logger, cache, ledger, aggregator, janitor, metrics, extraction.Options{})

	r := mux.NewRouter()
	RegisterRoutes(r, NewOpsHandler(logger, svc))
	return r, svc, db
}

func seedAttempts(t *testing.T, svc *extraction.Service, day time.Time) {
	t.Helper()
	for i, success := range []bool{true, true, false} {
		_, err := svc.RecordAttempt(context.Background(), extraction.Attempt{
			FileName:  "contract.pdf",
			FileSize:  2048,
			Success:   success,
			LatencyMs: int64(100 * (i + 1)),
			At:        day.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("RecordAttempt() error = %v", err)
		}
	}
}

func TestHandleDashboard(t *testing.T) {
	r, svc, _ := newTestRouter(t)
	day := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	seedAttempts(t, svc, day)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/dashboard?from=2025-01-01&to=2025-01-02", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []models.DailyMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(rows) != 1 || rows[0].TotalCount != 3 || rows[0].SuccessCount != 2 {
		t.Fatalf("dashboard rows = %+v", rows)
	}
	if rows[0].AvgLatencyMs != 200 {
		t.Fatalf("avg latency = %v, want 200", rows[0].AvgLatencyMs)
	}
}

func TestHandleDashboardRejectsBadDate(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/dashboard?from=01-01-2025", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSessionsFilter(t *testing.T) {
	r, svc, _ := newTestRouter(t)
	day := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	seedAttempts(t, svc, day)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions?success=false", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []models.ProcessingSession
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(rows) != 1 || rows[0].Success {
		t.Fatalf("filtered sessions = %+v", rows)
	}
}

func TestHandleRunRetention(t *testing.T) {
	r, _, db := newTestRouter(t)

	old := models.ProcessingSession{
		SessionID: "old", FileName: "a.pdf", FileSize: 1, Success: true,
		LatencyMs: 10, CreatedAt: time.Now().UTC().AddDate(0, 0, -40),
	}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/retention/run", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sum retention.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if sum.SessionsDeleted != 1 {
		t.Fatalf("summary = %+v, want one deleted session", sum)
	}
}

func TestHandleRebuildMetrics(t *testing.T) {
	r, svc, db := newTestRouter(t)
	day := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	seedAttempts(t, svc, day)

	// Corrupt the rollup, then ask for a rebuild.
	if err := db.Model(&models.DailyMetrics{}).Where("date = ?", "2025-01-01").
		Update("total_count", 99).Error; err != nil {
		t.Fatalf("corrupt rollup: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/metrics/rebuild?from=2025-01-01&to=2025-01-01", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var row models.DailyMetrics
	if err := db.Where("date = ?", "2025-01-01").First(&row).Error; err != nil {
		t.Fatalf("read rollup: %v", err)
	}
	if row.TotalCount != 3 {
		t.Fatalf("rebuilt total = %d, want 3", row.TotalCount)
	}
}

func TestHandleHealth(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
