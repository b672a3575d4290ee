package store

import (
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/autopilot-ops/extraction-store/internal/models"
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
	// A single connection keeps the in-memory database alive and serializes
	// concurrent test writers the way row locks would.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.CacheEntry{}, &models.ProcessingSession{}, &models.DailyMetrics{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func floatPtr(v float64) *float64 {
	return &v
}
