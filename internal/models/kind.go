package models

// Kind names an entity type. Kinds are also the remote collection names.
type Kind string

const (
	KindPatient    Kind = "patient"
	KindCarePlan   Kind = "care_plan"
	KindContact    Kind = "contact"
	KindTask       Kind = "task"
	KindOutcome    Kind = "outcome"
	KindPreference Kind = "preference"

	// Relational children, always nested under a parent.
	KindNote            Kind = "note"
	KindOutcomeValue    Kind = "outcome_value"
	KindScheduleElement Kind = "schedule_element"
)

// Shape tells whether edits produce new versions or mutate in place.
type Shape string

const (
	ShapeSimple    Shape = "simple"
	ShapeVersioned Shape = "versioned"
)

// Regime is the conflict-resolution rule set applied to a kind.
type Regime string

const (
	RegimeWallClock    Regime = "wall_clock"
	RegimeLogicalClock Regime = "logical_clock"
)
