package reservation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

// Line is one order item that needs stock.
type Line struct {
	OrderItemID uuid.UUID
	ProductID   uuid.UUID
	Qty         int
}

// Candidate is a batch snapshot taken under its row lock.
type Candidate struct {
	BatchID    uuid.UUID
	ProductID  uuid.UUID
	Available  int
	ExpiryDate *time.Time
	CreatedAt  time.Time
}

// Draw is the quantity one line takes from one batch.
type Draw struct {
	OrderItemID uuid.UUID
	ProductID   uuid.UUID
	BatchID     uuid.UUID
	Qty         int
}

// Plan assigns batches to lines earliest-expiry first. Lines for the same
// product share one availability view. The first line that cannot be covered
// fails the whole plan with INSUFFICIENT_STOCK carrying its unmet quantity.
func Plan(lines []Line, candidates []Candidate) ([]Draw, error) {
	byProduct := map[uuid.UUID][]*Candidate{}
	for i := range candidates {
		c := candidates[i]
		if c.Available <= 0 {
			continue
		}
		byProduct[c.ProductID] = append(byProduct[c.ProductID], &c)
	}
	for _, pool := range byProduct {
		SortFEFO(pool)
	}

	draws := []Draw{}
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.InvalidQuantity(line.Qty)
		}
		needed := line.Qty
		for _, c := range byProduct[line.ProductID] {
			if needed == 0 {
				break
			}
			if c.Available == 0 {
				continue
			}
			take := min(needed, c.Available)
			c.Available -= take
			needed -= take
			draws = append(draws, Draw{
				OrderItemID: line.OrderItemID,
				ProductID:   line.ProductID,
				BatchID:     c.BatchID,
				Qty:         take,
			})
		}
		if needed > 0 {
			return nil, pkgerrors.InsufficientStock(line.ProductID.String(), needed)
		}
	}
	return draws, nil
}

// SortFEFO orders candidates by expiry ascending with undated batches last,
// then by creation time and id.
func SortFEFO(pool []*Candidate) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.BatchID.String() < b.BatchID.String()
	})
}
