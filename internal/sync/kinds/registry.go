// Package kinds describes every synchronizable entity kind once and
// implements the per-kind capabilities the engine needs generically.
package kinds

import (
	"fmt"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
)

// Spec declares how one kind synchronizes.
type Spec struct {
	Kind   models.Kind
	Shape  models.Shape
	Regime models.Regime
	// ParentKind is the kind referenced by ParentID, if any.
	ParentKind models.Kind
	// ChildKinds are the relational children carried inline.
	ChildKinds []models.Kind
	// Required payload fields for live (non-deleted) records.
	Required []string
}

// Registry keeps specs in dependency order: a kind always comes after the
// kind it references.
type Registry struct {
	specs  []Spec
	byKind map[models.Kind]*Synchronizer
	child  map[models.Kind]bool
}

func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{byKind: map[models.Kind]*Synchronizer{}, child: map[models.Kind]bool{}}
	for _, s := range specs {
		if _, dup := r.byKind[s.Kind]; dup {
			return nil, fmt.Errorf("kind %s registered twice", s.Kind)
		}
		if s.ParentKind != "" {
			if _, ok := r.byKind[s.ParentKind]; !ok {
				return nil, fmt.Errorf("kind %s references %s before it is registered", s.Kind, s.ParentKind)
			}
		}
		r.specs = append(r.specs, s)
		r.byKind[s.Kind] = &Synchronizer{spec: s}
		for _, c := range s.ChildKinds {
			r.child[c] = true
		}
	}
	return r, nil
}

// Default is the care record model: patients own care plans, care plans own
// contacts and tasks, tasks own outcomes. Preferences are device settings
// pushed opportunistically under the wall-clock regime.
func Default() *Registry {
	r, err := NewRegistry(
		Spec{Kind: models.KindPatient, Shape: models.ShapeVersioned, Regime: models.RegimeLogicalClock,
			ChildKinds: []models.Kind{models.KindNote}, Required: []string{"name"}},
		Spec{Kind: models.KindCarePlan, Shape: models.ShapeVersioned, Regime: models.RegimeLogicalClock,
			ParentKind: models.KindPatient, ChildKinds: []models.Kind{models.KindNote}, Required: []string{"title"}},
		Spec{Kind: models.KindContact, Shape: models.ShapeVersioned, Regime: models.RegimeLogicalClock,
			ParentKind: models.KindCarePlan, ChildKinds: []models.Kind{models.KindNote}, Required: []string{"name"}},
		Spec{Kind: models.KindTask, Shape: models.ShapeVersioned, Regime: models.RegimeLogicalClock,
			ParentKind: models.KindCarePlan, ChildKinds: []models.Kind{models.KindScheduleElement, models.KindNote},
			Required: []string{"title"}},
		Spec{Kind: models.KindOutcome, Shape: models.ShapeSimple, Regime: models.RegimeLogicalClock,
			ParentKind: models.KindTask, ChildKinds: []models.Kind{models.KindOutcomeValue, models.KindNote}},
		Spec{Kind: models.KindPreference, Shape: models.ShapeSimple, Regime: models.RegimeWallClock,
			Required: []string{"value"}},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the synchronizer of kind.
func (r *Registry) Lookup(kind models.Kind) (*Synchronizer, error) {
	s, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownKind, kind)
	}
	return s, nil
}

// RoundKinds lists, in dependency order, the kinds that take part in a
// logical-clock round.
func (r *Registry) RoundKinds() []models.Kind {
	return r.kindsWith(models.RegimeLogicalClock)
}

// WallClockKinds lists kinds synchronized outside formal rounds.
func (r *Registry) WallClockKinds() []models.Kind {
	return r.kindsWith(models.RegimeWallClock)
}

// All lists every top-level kind in dependency order.
func (r *Registry) All() []models.Kind {
	out := make([]models.Kind, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Kind
	}
	return out
}

// ChildKinds lists every relational child kind once, in registration order.
func (r *Registry) ChildKinds() []models.Kind {
	var out []models.Kind
	seen := map[models.Kind]bool{}
	for _, s := range r.specs {
		for _, c := range s.ChildKinds {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// IsChild reports whether kind only exists nested under a parent.
func (r *Registry) IsChild(kind models.Kind) bool {
	return r.child[kind]
}

// Encode maps an entity to its remote shape through its kind.
func (r *Registry) Encode(e *models.Entity) (models.RemoteDocument, error) {
	s, err := r.Lookup(e.Kind)
	if err != nil {
		return nil, err
	}
	return s.ToRemoteShape(e)
}

// Decode maps a remote document back to an entity through the kind it names.
func (r *Registry) Decode(doc models.RemoteDocument) (*models.Entity, error) {
	kind, _ := doc["kind"].(string)
	s, err := r.Lookup(models.Kind(kind))
	if err != nil {
		return nil, err
	}
	return s.FromRemoteShape(doc)
}

func (r *Registry) kindsWith(regime models.Regime) []models.Kind {
	var out []models.Kind
	for _, s := range r.specs {
		if s.Regime == regime {
			out = append(out, s.Kind)
		}
	}
	return out
}
