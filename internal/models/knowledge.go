package models

import "maps"

// KnowledgeVector maps a process identity to the highest logical clock it
// has observed.
type KnowledgeVector map[string]int64

// Get returns the clock for processID, zero when unknown.
func (kv KnowledgeVector) Get(processID string) int64 {
	return kv[processID]
}

// Max is the highest clock observed by any process.
func (kv KnowledgeVector) Max() int64 {
	var m int64
	for _, v := range kv {
		if v > m {
			m = v
		}
	}
	return m
}

// Merge folds other into kv keeping the per-process maximum.
func (kv KnowledgeVector) Merge(other KnowledgeVector) {
	for p, v := range other {
		if v > kv[p] {
			kv[p] = v
		}
	}
}

// Advance raises the clock of processID to value; lower values are ignored.
// It reports whether the vector changed.
func (kv KnowledgeVector) Advance(processID string, value int64) bool {
	cur, ok := kv[processID]
	if ok && cur >= value {
		return false
	}
	kv[processID] = value
	return true
}

func (kv KnowledgeVector) Clone() KnowledgeVector {
	if kv == nil {
		return KnowledgeVector{}
	}
	return maps.Clone(kv)
}

// RevisionRecord is the batch produced by one pull.
type RevisionRecord struct {
	Entities []*Entity
	Vector   KnowledgeVector
}

// Empty reports "nothing new since the requested clock".
func (r *RevisionRecord) Empty() bool {
	return r == nil || len(r.Entities) == 0
}

// MaxClock is the highest logical clock among the pulled entities.
func (r *RevisionRecord) MaxClock() int64 {
	var m int64
	if r == nil {
		return 0
	}
	for _, e := range r.Entities {
		if e.LogicalClock > m {
			m = e.LogicalClock
		}
	}
	return m
}
