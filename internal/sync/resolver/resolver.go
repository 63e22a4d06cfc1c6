// Package resolver decides which side of a local/remote pair wins. It never
// touches a store: callers carry out the decision together with any relation
// handling it implies.
package resolver

import (
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
)

type Decision int

const (
	NoOp Decision = iota
	ApplyLocalToRemote
	ApplyRemoteToLocal
	Conflict
	RejectLocal
)

func (d Decision) String() string {
	switch d {
	case NoOp:
		return "NOOP"
	case ApplyLocalToRemote:
		return "APPLY_LOCAL_TO_REMOTE"
	case ApplyRemoteToLocal:
		return "APPLY_REMOTE_TO_LOCAL"
	case Conflict:
		return "CONFLICT"
	case RejectLocal:
		return "REJECT_LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Err maps decisions that block a push to their sentinel error.
func (d Decision) Err() error {
	switch d {
	case Conflict:
		return common.ErrClockConflict
	case RejectLocal:
		return common.ErrCausallyBehind
	default:
		return nil
	}
}

// Func is the signature shared by both regimes.
type Func func(local, remote *models.Entity, overwriteRemote bool) Decision

// WallClock is last-writer-wins on UpdatedAt. Equal timestamps mean the two
// sides are already in sync.
func WallClock(local, remote *models.Entity, overwriteRemote bool) Decision {
	switch {
	case overwriteRemote || remote.UpdatedAt.Before(local.UpdatedAt):
		return ApplyLocalToRemote
	case remote.UpdatedAt.After(local.UpdatedAt):
		return ApplyRemoteToLocal
	default:
		return NoOp
	}
}

// LogicalClock lets the first successful writer win: local must be strictly
// ahead of remote, equality is a conflict and anything else is rejected.
func LogicalClock(local, remote *models.Entity, overwriteRemote bool) Decision {
	switch {
	case overwriteRemote || local.LogicalClock > remote.LogicalClock:
		return ApplyLocalToRemote
	case local.LogicalClock == remote.LogicalClock:
		return Conflict
	default:
		return RejectLocal
	}
}

// For returns the comparison for a regime.
func For(regime models.Regime) Func {
	if regime == models.RegimeWallClock {
		return WallClock
	}
	return LogicalClock
}
