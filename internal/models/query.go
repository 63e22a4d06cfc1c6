package models

import (
	"cmp"
	"slices"
)

// Query selects remote entities of one kind. Zero-valued fields do not
// constrain the result. Results are always ordered by (LogicalClock,
// CreatedAt) ascending.
type Query struct {
	Kind Kind
	// MinClock keeps entities whose logical clock is >= MinClock when set.
	MinClock *int64
	ID       string
	UUID     string
	// ParentUUID selects relational children of one parent version.
	ParentUUID string
	// CurrentOnly keeps chain heads (NextVersionUUID == "").
	CurrentOnly bool
	// IncludeRelations attaches relational children to every result.
	IncludeRelations bool
}

// Since is a helper for building MinClock.
func Since(clock int64) *int64 {
	return &clock
}

// Matches applies every predicate of q to e except Kind.
func (q Query) Matches(e *Entity) bool {
	if q.MinClock != nil && e.LogicalClock < *q.MinClock {
		return false
	}
	if q.ID != "" && e.ID != q.ID {
		return false
	}
	if q.UUID != "" && e.UUID != q.UUID {
		return false
	}
	if q.ParentUUID != "" && e.ParentUUID != q.ParentUUID {
		return false
	}
	if q.CurrentOnly && !e.IsCurrent() {
		return false
	}
	return true
}

// SortByClock orders entities by (LogicalClock, CreatedAt) ascending; UUID
// breaks remaining ties so the order is total.
func SortByClock(list []*Entity) {
	slices.SortStableFunc(list, func(a, b *Entity) int {
		if c := cmp.Compare(a.LogicalClock, b.LogicalClock); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UUID, b.UUID)
	})
}

// SortByPosition orders relational children inside one parent.
func SortByPosition(list []*Entity) {
	slices.SortStableFunc(list, func(a, b *Entity) int {
		return cmp.Compare(a.Position, b.Position)
	})
}
