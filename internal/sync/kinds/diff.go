package kinds

import "github.com/dmitrijs2005/caresync/internal/models"

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// ChildOp is one remote write needed to make a child collection match.
type ChildOp struct {
	Type OpType
	// Previous is the remote child being replaced or removed.
	Previous *models.Entity
	// Next is the child to write; nil for deletes.
	Next *models.Entity
}

// DiffChildren aligns previous and next by index within each child kind.
// Index i of next updates index i of previous in place and inherits its
// identity; extra entries on either side are created or deleted.
func DiffChildren(previous, next []*models.Entity) []ChildOp {
	prevByKind := groupByKind(previous, true)
	nextByKind := groupByKind(next, false)

	var kinds []models.Kind
	seen := map[models.Kind]bool{}
	for _, list := range [][]*models.Entity{next, previous} {
		for _, c := range list {
			if !seen[c.Kind] {
				seen[c.Kind] = true
				kinds = append(kinds, c.Kind)
			}
		}
	}

	var ops []ChildOp
	for _, k := range kinds {
		prev, nxt := prevByKind[k], nextByKind[k]
		for i, n := range nxt {
			if i < len(prev) {
				n.UUID = prev[i].UUID
				n.RemoteRef = prev[i].RemoteRef
				if n.CreatedAt.IsZero() {
					n.CreatedAt = prev[i].CreatedAt
				}
				ops = append(ops, ChildOp{Type: OpUpdate, Previous: prev[i], Next: n})
				continue
			}
			ops = append(ops, ChildOp{Type: OpCreate, Next: n})
		}
		for i := len(nxt); i < len(prev); i++ {
			ops = append(ops, ChildOp{Type: OpDelete, Previous: prev[i]})
		}
	}
	return ops
}

func groupByKind(list []*models.Entity, byPosition bool) map[models.Kind][]*models.Entity {
	out := map[models.Kind][]*models.Entity{}
	for _, c := range list {
		out[c.Kind] = append(out[c.Kind], c)
	}
	if byPosition {
		for _, group := range out {
			models.SortByPosition(group)
		}
	}
	return out
}
