package enums

import "fmt"

// MovementReason tags every stock movement. The set is closed; each reason
// declares which batch counters its delta contributes to.
type MovementReason string

const (
	MovementRestock    MovementReason = "restock"
	MovementReserve    MovementReason = "reserve"
	MovementRelease    MovementReason = "release"
	MovementConsume    MovementReason = "consume"
	MovementAdjustment MovementReason = "adjustment"
)

var validMovementReasons = []MovementReason{
	MovementRestock,
	MovementReserve,
	MovementRelease,
	MovementConsume,
	MovementAdjustment,
}

// MovementReasons returns every reason in declaration order.
func MovementReasons() []MovementReason {
	out := make([]MovementReason, len(validMovementReasons))
	copy(out, validMovementReasons)
	return out
}

func (r MovementReason) String() string {
	return string(r)
}

func (r MovementReason) IsValid() bool {
	for _, candidate := range validMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// AffectsInitial is true only for restock.
func (r MovementReason) AffectsInitial() bool {
	return r == MovementRestock
}

func (r MovementReason) AffectsRemaining() bool {
	switch r {
	case MovementRestock, MovementConsume, MovementAdjustment:
		return true
	default:
		return false
	}
}

func (r MovementReason) AffectsReserved() bool {
	switch r {
	case MovementReserve, MovementRelease, MovementConsume:
		return true
	default:
		return false
	}
}

// Sign is the required sign of the delta: +1, -1, or 0 when either is allowed.
func (r MovementReason) Sign() int {
	switch r {
	case MovementRestock, MovementReserve:
		return 1
	case MovementRelease, MovementConsume:
		return -1
	default:
		return 0
	}
}

func ParseMovementReason(value string) (MovementReason, error) {
	for _, candidate := range validMovementReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement reason %q", value)
}
