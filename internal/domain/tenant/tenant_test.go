package tenant

import (
	"testing"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("creates tenant in pending status", func(t *testing.T) {
		tn, err := New("Acme Corp", TierStarter, "billing@acme.example")

		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", tn.Name)
		assert.Equal(t, StatusPending, tn.Status)
		assert.Equal(t, TierStarter, tn.Tier)
		assert.Equal(t, "UTC", tn.Timezone)
		assert.Len(t, tn.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeTenantCreated, tn.GetDomainEvents()[0].EventType())
	})

	t.Run("fails with empty name", func(t *testing.T) {
		tn, err := New("", TierFree, "")

		assert.Error(t, err)
		assert.Nil(t, tn)
	})

	t.Run("fails with invalid tier", func(t *testing.T) {
		tn, err := New("Acme", Tier("platinum"), "")

		assert.Error(t, err)
		assert.Nil(t, tn)
	})

	t.Run("fails with malformed billing email", func(t *testing.T) {
		tn, err := New("Acme", TierFree, "not-an-email")

		assert.Error(t, err)
		assert.Nil(t, tn)
	})
}

func TestStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusSuspended, false},
		{StatusActive, StatusSuspended, true},
		{StatusSuspended, StatusActive, true},
		{StatusActive, StatusPending, false},
		{StatusPending, StatusCanceled, true},
		{StatusActive, StatusCanceled, true},
		{StatusSuspended, StatusCanceled, true},
		{StatusCanceled, StatusActive, false},
		{StatusCanceled, StatusCanceled, false},
	}

	for _, tc := range cases {
		t.Run(tc.from.String()+"_to_"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestTenant_Transitions(t *testing.T) {
	t.Run("activates pending tenant", func(t *testing.T) {
		tn, _ := New("Acme", TierFree, "")

		require.NoError(t, tn.Activate())
		assert.True(t, tn.IsActive())
	})

	t.Run("suspend and reinstate", func(t *testing.T) {
		tn, _ := New("Acme", TierFree, "")
		require.NoError(t, tn.Activate())

		require.NoError(t, tn.Suspend())
		assert.True(t, tn.IsSuspended())

		require.NoError(t, tn.Activate())
		assert.True(t, tn.IsActive())
	})

	t.Run("canceled is terminal", func(t *testing.T) {
		tn, _ := New("Acme", TierFree, "")
		require.NoError(t, tn.Cancel())

		assert.Error(t, tn.Activate())
		assert.Error(t, tn.Suspend())
		assert.True(t, tn.IsCanceled())
	})

	t.Run("records status change events", func(t *testing.T) {
		tn, _ := New("Acme", TierFree, "")
		tn.ClearDomainEvents()

		require.NoError(t, tn.Activate())

		events := tn.GetDomainEvents()
		require.Len(t, events, 1)
		changed, ok := events[0].(*StatusChangedEvent)
		require.True(t, ok)
		assert.Equal(t, StatusPending, changed.OldStatus)
		assert.Equal(t, StatusActive, changed.NewStatus)
	})
}

func TestTenant_ChangeTier(t *testing.T) {
	t.Run("changes tier and records event", func(t *testing.T) {
		tn, _ := New("Acme", TierStarter, "")
		tn.ClearDomainEvents()

		require.NoError(t, tn.ChangeTier(TierBusiness))

		assert.Equal(t, TierBusiness, tn.Tier)
		events := tn.GetDomainEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventTypeTenantTierChanged, events[0].EventType())
	})

	t.Run("same tier is a no-op", func(t *testing.T) {
		tn, _ := New("Acme", TierStarter, "")
		tn.ClearDomainEvents()

		require.NoError(t, tn.ChangeTier(TierStarter))
		assert.Empty(t, tn.GetDomainEvents())
	})

	t.Run("rejects tier change on canceled tenant", func(t *testing.T) {
		tn, _ := New("Acme", TierStarter, "")
		require.NoError(t, tn.Cancel())

		assert.Error(t, tn.ChangeTier(TierBusiness))
	})
}

func TestTierLimits(t *testing.T) {
	t.Run("every tier covers every resource type", func(t *testing.T) {
		tiers := []Tier{TierFree, TierStarter, TierProfessional, TierBusiness, TierEnterprise, TierMSP}
		for _, tier := range tiers {
			limits := TierLimits(tier)
			for _, rt := range billing.AllResourceTypes() {
				limit, ok := limits[rt]
				assert.True(t, ok, "tier %s missing %s", tier, rt)
				assert.Positive(t, limit)
			}
		}
	})

	t.Run("higher tiers have higher limits", func(t *testing.T) {
		free := TierLimits(TierFree)
		enterprise := TierLimits(TierEnterprise)
		for _, rt := range billing.AllResourceTypes() {
			assert.Greater(t, enterprise[rt], free[rt])
		}
	})

	t.Run("unknown tier falls back to free", func(t *testing.T) {
		assert.Equal(t, TierLimits(TierFree), TierLimits(Tier("bogus")))
	})
}
