package engine

import (
	"bytes"
	"encoding/json"
	"maps"
	"reflect"
	"time"

	"github.com/dmitrijs2005/caresync/internal/models"
)

// SameRevision reports whether a local copy already reflects remote, so
// merging it again would change nothing.
func SameRevision(local, remote *models.Entity) bool {
	if local.ID != remote.ID ||
		local.RemoteRef != remote.RemoteRef ||
		local.LogicalClock != remote.LogicalClock ||
		local.PreviousVersionUUID != remote.PreviousVersionUUID ||
		local.ParentID != remote.ParentID ||
		!local.UpdatedAt.Equal(remote.UpdatedAt) ||
		!sameTime(local.DeletedAt, remote.DeletedAt) {
		return false
	}
	// a local successor the remote does not know about yet is expected
	if remote.NextVersionUUID != "" && local.NextVersionUUID != remote.NextVersionUUID {
		return false
	}
	if !samePayload(local.Payload, remote.Payload) || !maps.Equal(nonNil(local.Aux), nonNil(remote.Aux)) {
		return false
	}
	if len(local.Children) != len(remote.Children) {
		return false
	}
	for i := range local.Children {
		l, r := local.Children[i], remote.Children[i]
		if l.UUID != r.UUID || l.LogicalClock != r.LogicalClock || !samePayload(l.Payload, r.Payload) {
			return false
		}
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// samePayload compares payloads by their JSON form, so numbers that went
// through different decoders still match.
func samePayload(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
