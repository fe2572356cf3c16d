package tenant

import (
	"github.com/meterd/backend/internal/domain/billing"
)

// TierLimits returns the quota ceilings for every metered resource at the
// given tier. Unknown tiers fall back to the free tier limits.
func TierLimits(tier Tier) map[billing.ResourceType]int64 {
	switch tier {
	case TierStarter:
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          10,
			billing.ResourceDevices:        25,
			billing.ResourceStorageGB:      50,
			billing.ResourceAPICalls:       100_000,
			billing.ResourceAlertsPerMonth: 1_000,
		}
	case TierProfessional:
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          50,
			billing.ResourceDevices:        200,
			billing.ResourceStorageGB:      500,
			billing.ResourceAPICalls:       1_000_000,
			billing.ResourceAlertsPerMonth: 10_000,
		}
	case TierBusiness:
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          200,
			billing.ResourceDevices:        1_000,
			billing.ResourceStorageGB:      2_000,
			billing.ResourceAPICalls:       5_000_000,
			billing.ResourceAlertsPerMonth: 50_000,
		}
	case TierEnterprise:
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          1_000,
			billing.ResourceDevices:        10_000,
			billing.ResourceStorageGB:      10_000,
			billing.ResourceAPICalls:       25_000_000,
			billing.ResourceAlertsPerMonth: 250_000,
		}
	case TierMSP:
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          5_000,
			billing.ResourceDevices:        50_000,
			billing.ResourceStorageGB:      50_000,
			billing.ResourceAPICalls:       100_000_000,
			billing.ResourceAlertsPerMonth: 1_000_000,
		}
	default: // TierFree
		return map[billing.ResourceType]int64{
			billing.ResourceUsers:          3,
			billing.ResourceDevices:        5,
			billing.ResourceStorageGB:      5,
			billing.ResourceAPICalls:       10_000,
			billing.ResourceAlertsPerMonth: 100,
		}
	}
}
