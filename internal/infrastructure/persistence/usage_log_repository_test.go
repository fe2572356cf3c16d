package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

func TestGormUsageLogRepository_Append(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUsageLogRepository(setupTestDB(t))
	tenantID := uuid.New()

	t.Run("appends entries", func(t *testing.T) {
		entry, err := billing.NewUsageLogEntry(tenantID, billing.ResourceAPICalls, 5, "batch")
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, entry))
	})

	t.Run("duplicate idempotency key is rejected", func(t *testing.T) {
		ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		first, err := billing.NewUsageLogEntry(tenantID, billing.ResourceDevices, 1, "")
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, first.WithOccurredOn(ts)))

		second, err := billing.NewUsageLogEntry(tenantID, billing.ResourceDevices, 1, "")
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Append(ctx, second.WithOccurredOn(ts)), shared.ErrAlreadyExists)

		total, err := repo.SumSince(ctx, tenantID, billing.ResourceDevices, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total, "duplicate never double counts")
	})
}

func TestGormUsageLogRepository_Sums(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUsageLogRepository(setupTestDB(t))
	tenantID := uuid.New()
	otherTenant := uuid.New()

	appendAt := func(id uuid.UUID, rt billing.ResourceType, amount int64, at time.Time) {
		entry, err := billing.NewUsageLogEntry(id, rt, amount, "")
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, entry.WithOccurredOn(at)))
	}

	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	april := march.AddDate(0, 1, 0)
	appendAt(tenantID, billing.ResourceAPICalls, 100, march.Add(time.Hour))
	appendAt(tenantID, billing.ResourceAPICalls, 50, march.Add(48*time.Hour))
	appendAt(tenantID, billing.ResourceAPICalls, 30, april.Add(time.Hour))
	appendAt(tenantID, billing.ResourceDevices, 9, march.Add(time.Hour))
	appendAt(otherTenant, billing.ResourceAPICalls, 999, march.Add(time.Hour))

	t.Run("SumSince includes the boundary instant", func(t *testing.T) {
		total, err := repo.SumSince(ctx, tenantID, billing.ResourceAPICalls, march)
		require.NoError(t, err)
		assert.Equal(t, int64(180), total)
	})

	t.Run("SumInRange is half-open", func(t *testing.T) {
		total, err := repo.SumInRange(ctx, tenantID, billing.ResourceAPICalls, march, april)
		require.NoError(t, err)
		assert.Equal(t, int64(150), total)
	})

	t.Run("empty range sums to zero", func(t *testing.T) {
		total, err := repo.SumInRange(ctx, tenantID, billing.ResourceStorageGB, march, april)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}
