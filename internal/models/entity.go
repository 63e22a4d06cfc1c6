// Package models holds the records exchanged between the local store, the
// sync engine and the remote object store.
package models

import (
	"maps"
	"time"
)

// Entity is one synchronizable record, or one version of it for versioned
// kinds. Empty strings stand for absent references.
type Entity struct {
	Kind Kind
	// ID is the caller-assigned business identifier, shared by every version.
	ID string
	// UUID identifies this specific version.
	UUID string
	// RemoteRef is assigned by the remote store on first save.
	RemoteRef string

	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	EffectiveDate time.Time

	LogicalClock int64

	PreviousVersionUUID string
	NextVersionUUID     string

	// ParentID references the business id of the parent kind's entity;
	// ParentUUID is the resolved version and may lag behind until relinked.
	ParentID   string
	ParentUUID string
	// Position orders a relational child inside its parent's collection.
	Position int

	Payload  map[string]any
	Aux      map[string]string
	Children []*Entity

	// Pending marks local changes not yet pushed. It never leaves the device.
	Pending bool
}

// IsCurrent reports whether e is the head of its version chain.
func (e *Entity) IsCurrent() bool {
	return e.NextVersionUUID == ""
}

func (e *Entity) IsDeleted() bool {
	return e.DeletedAt != nil
}

// IsRemote reports whether e has been saved remotely at least once.
func (e *Entity) IsRemote() bool {
	return e.RemoteRef != ""
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.DeletedAt != nil {
		d := *e.DeletedAt
		c.DeletedAt = &d
	}
	c.Payload = clonePayload(e.Payload)
	if e.Aux != nil {
		c.Aux = maps.Clone(e.Aux)
	}
	if e.Children != nil {
		c.Children = make([]*Entity, len(e.Children))
		for i, ch := range e.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return &c
}

// Ref returns a short description used in logs and round results.
func (e *Entity) Ref() EntityRef {
	return EntityRef{Kind: e.Kind, ID: e.ID, UUID: e.UUID}
}

// EntityRef identifies one entity version without carrying its data.
type EntityRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
	UUID string `json:"uuid"`
}

func clonePayload(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
