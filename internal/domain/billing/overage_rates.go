package billing

import (
	"github.com/shopspring/decimal"
)

// OverageRateTable maps each resource type to its per-unit overage rate in
// cents. Usage beyond the quota limit is billed at these fixed rates.
type OverageRateTable struct {
	rates map[ResourceType]decimal.Decimal
}

// DefaultOverageRates returns the platform's standard overage rate table.
// Rates are per unit of the resource: per user, per device, per GB, per API
// call, per alert.
func DefaultOverageRates() *OverageRateTable {
	return &OverageRateTable{
		rates: map[ResourceType]decimal.Decimal{
			ResourceUsers:          decimal.NewFromInt(500), // $5.00 per extra user
			ResourceDevices:        decimal.NewFromInt(200), // $2.00 per extra device
			ResourceStorageGB:      decimal.NewFromInt(10),  // $0.10 per extra GB
			ResourceAPICalls:       decimal.NewFromInt(1),   // $0.01 per extra call
			ResourceAlertsPerMonth: decimal.NewFromInt(2),   // $0.02 per extra alert
		},
	}
}

// NewOverageRateTable builds a rate table from per-resource cent rates
func NewOverageRateTable(centsPerUnit map[ResourceType]int64) *OverageRateTable {
	rates := make(map[ResourceType]decimal.Decimal, len(centsPerUnit))
	for rt, cents := range centsPerUnit {
		rates[rt] = decimal.NewFromInt(cents)
	}
	return &OverageRateTable{rates: rates}
}

// RateFor returns the per-unit rate in cents for a resource type.
// Resources without a configured rate are not billed for overage.
func (t *OverageRateTable) RateFor(resourceType ResourceType) (decimal.Decimal, bool) {
	rate, ok := t.rates[resourceType]
	return rate, ok
}

// ChargeFor computes the overage charge in whole cents for the given
// overage amount. Fractional cents round half-up.
func (t *OverageRateTable) ChargeFor(resourceType ResourceType, overage int64) int64 {
	if overage <= 0 {
		return 0
	}
	rate, ok := t.rates[resourceType]
	if !ok {
		return 0
	}
	return rate.Mul(decimal.NewFromInt(overage)).Round(0).IntPart()
}
