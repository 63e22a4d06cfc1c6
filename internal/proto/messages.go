package proto

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/caresync/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names used inside request and response structs.
const (
	FieldEntity    = "entity"
	FieldEntities  = "entities"
	FieldVector    = "vector"
	FieldIdentity  = "identity"
	FieldProcessID = "processId"
	FieldValue     = "value"
	FieldStatus    = "status"
	FieldPrevious  = "previousUUID"
	FieldNext      = "nextUUID"

	fieldKind             = "kind"
	fieldMinClock         = "minClock"
	fieldID               = "id"
	fieldUUID             = "uuid"
	fieldParentUUID       = "parentUUID"
	fieldCurrentOnly      = "currentOnly"
	fieldIncludeRelations = "includeRelations"
)

// ToStruct converts a JSON-compatible map into a Struct. Values go through
// encoding/json first, so any marshalable payload value is accepted.
func ToStruct(m map[string]any) (*structpb.Struct, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	s := &structpb.Struct{}
	if err := s.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

// FormatClock renders a logical clock for the wire. structpb numbers are
// float64, so clocks travel as decimal strings to stay exact past 2^53.
func FormatClock(v int64) string {
	return strconv.FormatInt(v, 10)
}

// ParseClock reads a clock written by FormatClock.
func ParseClock(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("clock is %T, not a decimal string", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return n, nil
}

// wireDocument encodes e with every logical clock, its children's included,
// as a decimal string.
func wireDocument(e *models.Entity) map[string]any {
	d := map[string]any(models.EncodeDocument(e))
	stringClocks(d)
	return d
}

func stringClocks(d map[string]any) {
	if v, ok := d[models.FieldLogicalClock].(int64); ok {
		d[models.FieldLogicalClock] = FormatClock(v)
	}
	children, _ := d[models.FieldChildren].([]any)
	for _, c := range children {
		if m, ok := c.(map[string]any); ok {
			stringClocks(m)
		}
	}
}

func EntityStruct(e *models.Entity) (*structpb.Struct, error) {
	return ToStruct(map[string]any{FieldEntity: wireDocument(e)})
}

// EntityFrom reads the entity field of s.
func EntityFrom(s *structpb.Struct) (*models.Entity, error) {
	m, ok := s.AsMap()[FieldEntity].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("message has no %s", FieldEntity)
	}
	return models.DecodeDocument(m)
}

func EntitiesStruct(list []*models.Entity) (*structpb.Struct, error) {
	docs := make([]any, len(list))
	for i, e := range list {
		docs[i] = wireDocument(e)
	}
	return ToStruct(map[string]any{FieldEntities: docs})
}

func EntitiesFrom(s *structpb.Struct) ([]*models.Entity, error) {
	raw, _ := s.AsMap()[FieldEntities].([]any)
	out := make([]*models.Entity, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entity is %T, not an object", item)
		}
		e, err := models.DecodeDocument(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// LinkStruct names the forward link previousUUID -> nextUUID of kind.
func LinkStruct(kind models.Kind, previousUUID, nextUUID string) (*structpb.Struct, error) {
	return ToStruct(map[string]any{
		fieldKind:     string(kind),
		FieldPrevious: previousUUID,
		FieldNext:     nextUUID,
	})
}

func LinkFrom(s *structpb.Struct) (kind models.Kind, previousUUID, nextUUID string, err error) {
	f := s.GetFields()
	kind = models.Kind(f[fieldKind].GetStringValue())
	previousUUID = f[FieldPrevious].GetStringValue()
	nextUUID = f[FieldNext].GetStringValue()
	if kind == "" || previousUUID == "" || nextUUID == "" {
		return "", "", "", fmt.Errorf("link needs %s, %s and %s", fieldKind, FieldPrevious, FieldNext)
	}
	return kind, previousUUID, nextUUID, nil
}

func QueryStruct(q models.Query) (*structpb.Struct, error) {
	m := map[string]any{
		fieldKind:             string(q.Kind),
		fieldCurrentOnly:      q.CurrentOnly,
		fieldIncludeRelations: q.IncludeRelations,
	}
	if q.MinClock != nil {
		m[fieldMinClock] = FormatClock(*q.MinClock)
	}
	for k, v := range map[string]string{fieldID: q.ID, fieldUUID: q.UUID, fieldParentUUID: q.ParentUUID} {
		if v != "" {
			m[k] = v
		}
	}
	return ToStruct(m)
}

func QueryFrom(s *structpb.Struct) (models.Query, error) {
	m := s.AsMap()
	q := models.Query{}
	kind, _ := m[fieldKind].(string)
	if kind == "" {
		return q, fmt.Errorf("query without %s", fieldKind)
	}
	q.Kind = models.Kind(kind)
	q.ID, _ = m[fieldID].(string)
	q.UUID, _ = m[fieldUUID].(string)
	q.ParentUUID, _ = m[fieldParentUUID].(string)
	q.CurrentOnly, _ = m[fieldCurrentOnly].(bool)
	q.IncludeRelations, _ = m[fieldIncludeRelations].(bool)
	if v, ok := m[fieldMinClock]; ok {
		since, err := ParseClock(v)
		if err != nil {
			return q, fmt.Errorf("query %s: %w", fieldMinClock, err)
		}
		q.MinClock = models.Since(since)
	}
	return q, nil
}

func VectorStruct(kv models.KnowledgeVector) (*structpb.Struct, error) {
	entries := make(map[string]any, len(kv))
	for k, v := range kv {
		entries[k] = FormatClock(v)
	}
	return ToStruct(map[string]any{FieldVector: entries})
}

func VectorFrom(s *structpb.Struct) (models.KnowledgeVector, error) {
	raw, ok := s.AsMap()[FieldVector].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("message has no %s", FieldVector)
	}
	kv := make(models.KnowledgeVector, len(raw))
	for k, v := range raw {
		n, err := ParseClock(v)
		if err != nil {
			return nil, fmt.Errorf("vector entry %s: %w", k, err)
		}
		kv[k] = n
	}
	return kv, nil
}
