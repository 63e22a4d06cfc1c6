package resolver

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestWallClock(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *models.Entity { return &models.Entity{UpdatedAt: t0.Add(d)} }

	tests := []struct {
		name      string
		local     *models.Entity
		remote    *models.Entity
		overwrite bool
		want      Decision
	}{
		{"local newer", at(time.Second), at(0), false, ApplyLocalToRemote},
		{"remote newer", at(0), at(time.Second), false, ApplyRemoteToLocal},
		{"tie is a no-op", at(0), at(0), false, NoOp},
		{"overwrite beats newer remote", at(0), at(time.Hour), true, ApplyLocalToRemote},
		{"overwrite on tie", at(0), at(0), true, ApplyLocalToRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WallClock(tt.local, tt.remote, tt.overwrite))
		})
	}
}

func TestLogicalClock(t *testing.T) {
	c := func(v int64) *models.Entity { return &models.Entity{LogicalClock: v} }

	tests := []struct {
		name      string
		local     *models.Entity
		remote    *models.Entity
		overwrite bool
		want      Decision
		err       error
	}{
		{"local ahead", c(7), c(3), false, ApplyLocalToRemote, nil},
		{"equal clocks conflict", c(5), c(5), false, Conflict, common.ErrClockConflict},
		{"local behind is rejected", c(5), c(7), false, RejectLocal, common.ErrCausallyBehind},
		{"overwrite wins when behind", c(1), c(9), true, ApplyLocalToRemote, nil},
		{"overwrite wins on equal", c(4), c(4), true, ApplyLocalToRemote, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := LogicalClock(tt.local, tt.remote, tt.overwrite)
			assert.Equal(t, tt.want, d)
			assert.ErrorIs(t, d.Err(), tt.err)
			if tt.err == nil {
				assert.NoError(t, d.Err())
			}
		})
	}
}

func TestFor(t *testing.T) {
	local := &models.Entity{LogicalClock: 1}
	remote := &models.Entity{LogicalClock: 2}

	assert.Equal(t, RejectLocal, For(models.RegimeLogicalClock)(local, remote, false))
	assert.Equal(t, NoOp, For(models.RegimeWallClock)(local, remote, false), "clocks are ignored under wall-clock")
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "NOOP", NoOp.String())
	assert.Equal(t, "APPLY_LOCAL_TO_REMOTE", ApplyLocalToRemote.String())
	assert.Equal(t, "APPLY_REMOTE_TO_LOCAL", ApplyRemoteToLocal.String())
	assert.Equal(t, "CONFLICT", Conflict.String())
	assert.Equal(t, "REJECT_LOCAL", RejectLocal.String())
	assert.Equal(t, "UNKNOWN", Decision(99).String())
}
