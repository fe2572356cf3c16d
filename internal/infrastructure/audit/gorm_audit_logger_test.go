package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Record{}))
	return db
}

func TestGormAuditLogger_LogEvent(t *testing.T) {
	ctx := context.Background()
	auditLogger := NewGormAuditLogger(setupAuditDB(t), zap.NewNop())
	tenantID := uuid.New()

	require.NoError(t, auditLogger.LogEvent(ctx, tenantID, "webhook:evt_1", "subscription.status_changed", "active", "past_due"))
	require.NoError(t, auditLogger.LogEvent(ctx, tenantID, "system", "tenant.status_changed", "active", "suspended"))
	require.NoError(t, auditLogger.LogEvent(ctx, uuid.New(), "system", "tenant.created", "", "pending"))

	records, err := auditLogger.FindByTenant(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, tenantID, record.TenantID)
	}
}

func TestGormAuditLogger_FindByTenant_Limit(t *testing.T) {
	ctx := context.Background()
	auditLogger := NewGormAuditLogger(setupAuditDB(t), zap.NewNop())
	tenantID := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, auditLogger.LogEvent(ctx, tenantID, "system", "quota.reset", "", ""))
	}

	records, err := auditLogger.FindByTenant(ctx, tenantID, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
