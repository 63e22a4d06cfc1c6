package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/models"
)

type Phase string

const (
	PhaseMerge  Phase = "merge"
	PhasePush   Phase = "push"
	PhaseRelink Phase = "relink"
)

// EntityError is one per-entity failure of a round.
type EntityError struct {
	Ref   models.EntityRef
	Phase Phase
	Err   error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s %s %s (%s): %v", e.Phase, e.Ref.Kind, e.Ref.ID, e.Ref.UUID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// RoundResult reports what a round achieved. Partial success is normal:
// Pulled and Pushed list what synced while Failures list what did not.
type RoundResult struct {
	Identity  string
	ProcessID string
	// Clock is the value pushed entities were stamped with.
	Clock      int64
	Vector     models.KnowledgeVector
	Trace      []State
	Pulled     []models.EntityRef
	Pushed     []models.EntityRef
	Failures   []*EntityError
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports total success.
func (r *RoundResult) OK() bool {
	return len(r.Failures) == 0
}

// Err joins the per-entity failures, nil when there were none.
func (r *RoundResult) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// FailuresOf filters failures matching target with errors.Is.
func (r *RoundResult) FailuresOf(target error) []*EntityError {
	var out []*EntityError
	for _, f := range r.Failures {
		if errors.Is(f.Err, target) {
			out = append(out, f)
		}
	}
	return out
}

func (r *RoundResult) fail(phase Phase, e *models.Entity, err error) {
	r.Failures = append(r.Failures, &EntityError{Ref: e.Ref(), Phase: phase, Err: err})
}

// Summary is a one-line description for logs and the CLI.
func (r *RoundResult) Summary() string {
	return fmt.Sprintf("clock=%d pulled=%d pushed=%d failed=%d", r.Clock, len(r.Pulled), len(r.Pushed), len(r.Failures))
}
