package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// RemoteDocument is the store-neutral shape of an entity as it travels to
// and from the remote object store.
type RemoteDocument map[string]any

const (
	fieldKind          = "kind"
	fieldID            = "id"
	fieldUUID          = "uuid"
	fieldRemoteRef     = "remoteRef"
	fieldCreatedAt     = "createdAt"
	fieldUpdatedAt     = "updatedAt"
	fieldDeletedAt     = "deletedAt"
	fieldEffectiveDate = "effectiveDate"
	fieldPrevious      = "previousVersionUUID"
	fieldNext          = "nextVersionUUID"
	fieldParentID      = "parentId"
	fieldParentUUID    = "parentUUID"
	fieldPosition      = "position"
	fieldPayload       = "payload"
	fieldAux           = "aux"
)

// Document keys transports rewrite on the way through.
const (
	FieldLogicalClock = "logicalClock"
	FieldChildren     = "children"
)

// EncodeDocument maps e to a RemoteDocument. Only JSON-compatible values are
// produced: strings, float64-convertible integers, maps and slices.
func EncodeDocument(e *Entity) RemoteDocument {
	d := RemoteDocument{
		fieldKind:         string(e.Kind),
		fieldID:           e.ID,
		fieldUUID:         e.UUID,
		FieldLogicalClock: e.LogicalClock,
		fieldPosition:     e.Position,
	}
	setString(d, fieldRemoteRef, e.RemoteRef)
	setString(d, fieldPrevious, e.PreviousVersionUUID)
	setString(d, fieldNext, e.NextVersionUUID)
	setString(d, fieldParentID, e.ParentID)
	setString(d, fieldParentUUID, e.ParentUUID)
	setTime(d, fieldCreatedAt, e.CreatedAt)
	setTime(d, fieldUpdatedAt, e.UpdatedAt)
	setTime(d, fieldEffectiveDate, e.EffectiveDate)
	if e.DeletedAt != nil {
		setTime(d, fieldDeletedAt, *e.DeletedAt)
	}
	if len(e.Payload) > 0 {
		d[fieldPayload] = clonePayload(e.Payload)
	}
	if len(e.Aux) > 0 {
		aux := make(map[string]any, len(e.Aux))
		for k, v := range e.Aux {
			aux[k] = v
		}
		d[fieldAux] = aux
	}
	if len(e.Children) > 0 {
		children := make([]any, len(e.Children))
		for i, c := range e.Children {
			children[i] = map[string]any(EncodeDocument(c))
		}
		d[FieldChildren] = children
	}
	return d
}

// DecodeDocument is the inverse of EncodeDocument. Numbers may arrive as
// float64 (JSON, structpb), as native integers or, for clocks that crossed
// gRPC, as decimal strings.
func DecodeDocument(d RemoteDocument) (*Entity, error) {
	e := &Entity{}
	var err error

	e.Kind = Kind(getString(d, fieldKind))
	e.ID = getString(d, fieldID)
	e.UUID = getString(d, fieldUUID)
	e.RemoteRef = getString(d, fieldRemoteRef)
	e.PreviousVersionUUID = getString(d, fieldPrevious)
	e.NextVersionUUID = getString(d, fieldNext)
	e.ParentID = getString(d, fieldParentID)
	e.ParentUUID = getString(d, fieldParentUUID)

	if e.UUID == "" {
		return nil, fmt.Errorf("document without %s", fieldUUID)
	}
	if e.LogicalClock, err = getInt(d, FieldLogicalClock); err != nil {
		return nil, err
	}
	pos, err := getInt(d, fieldPosition)
	if err != nil {
		return nil, err
	}
	e.Position = int(pos)

	if e.CreatedAt, err = getTime(d, fieldCreatedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = getTime(d, fieldUpdatedAt); err != nil {
		return nil, err
	}
	if e.EffectiveDate, err = getTime(d, fieldEffectiveDate); err != nil {
		return nil, err
	}
	if _, ok := d[fieldDeletedAt]; ok {
		t, err := getTime(d, fieldDeletedAt)
		if err != nil {
			return nil, err
		}
		e.DeletedAt = &t
	}

	if p, ok := d[fieldPayload].(map[string]any); ok {
		e.Payload = clonePayload(p)
	}
	if a, ok := d[fieldAux].(map[string]any); ok {
		e.Aux = make(map[string]string, len(a))
		for k, v := range a {
			e.Aux[k] = fmt.Sprint(v)
		}
	}
	if list, ok := d[FieldChildren].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("child of %s is %T, not an object", e.UUID, item)
			}
			child, err := DecodeDocument(m)
			if err != nil {
				return nil, err
			}
			e.Children = append(e.Children, child)
		}
		SortByPosition(e.Children)
	}
	return e, nil
}

func setString(d RemoteDocument, key, v string) {
	if v != "" {
		d[key] = v
	}
}

func setTime(d RemoteDocument, key string, t time.Time) {
	if !t.IsZero() {
		d[key] = t.UTC().Format(time.RFC3339Nano)
	}
}

func getString(d RemoteDocument, key string) string {
	s, _ := d[key].(string)
	return s
}

func getTime(d RemoteDocument, key string) (time.Time, error) {
	raw, ok := d[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %s: expected timestamp string, got %T", key, raw)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %s: %w", key, err)
	}
	return t, nil
}

func getInt(d RemoteDocument, key string) (int64, error) {
	switch v := d[key].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s: expected number, got %T", key, v)
	}
}
