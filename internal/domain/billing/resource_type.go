package billing

import (
	"github.com/meterd/backend/internal/domain/shared"
)

// ResourceType identifies a metered, quota-limited resource
type ResourceType string

const (
	ResourceUsers          ResourceType = "users"
	ResourceDevices        ResourceType = "devices"
	ResourceStorageGB      ResourceType = "storage_gb"
	ResourceAPICalls       ResourceType = "api_calls"
	ResourceAlertsPerMonth ResourceType = "alerts_per_month"
)

// String returns the string representation of ResourceType
func (r ResourceType) String() string {
	return string(r)
}

// IsValid returns true if the resource type is a known value
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceUsers, ResourceDevices, ResourceStorageGB, ResourceAPICalls, ResourceAlertsPerMonth:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the resource type
func (r ResourceType) DisplayName() string {
	switch r {
	case ResourceUsers:
		return "Users"
	case ResourceDevices:
		return "Devices"
	case ResourceStorageGB:
		return "Storage (GB)"
	case ResourceAPICalls:
		return "API Calls"
	case ResourceAlertsPerMonth:
		return "Alerts per Month"
	default:
		return string(r)
	}
}

// AllResourceTypes returns all known resource types
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceUsers,
		ResourceDevices,
		ResourceStorageGB,
		ResourceAPICalls,
		ResourceAlertsPerMonth,
	}
}

// ParseResourceType parses a string into a ResourceType
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(s)
	if !rt.IsValid() {
		return "", shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type: "+s)
	}
	return rt, nil
}
