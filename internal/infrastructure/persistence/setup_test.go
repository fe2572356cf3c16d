package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/tenant"
)

// setupTestDB creates an in-memory SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&tenant.Tenant{},
		&billing.ResourceQuota{},
		&billing.UsageLogEntry{},
		&billing.Subscription{},
		&billing.Invoice{},
		&billing.WebhookEvent{},
	))
	return db
}
