package enums

import "fmt"

// InventoryStatus summarizes the stock hold of an order.
type InventoryStatus string

const (
	InventoryStatusReserved InventoryStatus = "reserved"
	InventoryStatusConsumed InventoryStatus = "consumed"
	InventoryStatusReleased InventoryStatus = "released"
)

var validInventoryStatuses = []InventoryStatus{
	InventoryStatusReserved,
	InventoryStatusConsumed,
	InventoryStatusReleased,
}

func (s InventoryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InventoryStatus.
func (s InventoryStatus) IsValid() bool {
	for _, candidate := range validInventoryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseInventoryStatus converts raw input into an InventoryStatus.
func ParseInventoryStatus(value string) (InventoryStatus, error) {
	for _, candidate := range validInventoryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory status %q", value)
}
