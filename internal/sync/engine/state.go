package engine

import "fmt"

type State string

const (
	StateIdle      State = "IDLE"
	StatePulling   State = "PULLING"
	StateMerging   State = "MERGING"
	StateAdvancing State = "ADVANCING"
	StatePushing   State = "PUSHING"
	StateFailed    State = "FAILED"
)

var transitions = map[State][]State{
	StateIdle:      {StatePulling},
	StatePulling:   {StateMerging},
	StateMerging:   {StateAdvancing},
	StateAdvancing: {StatePushing},
	StatePushing:   {StateIdle},
	StateFailed:    {StatePulling},
}

// CanTransition reports whether the round state machine allows from -> to.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type machine struct {
	state   State
	trace   []State
	observe func(State)
}

func newMachine(observe func(State)) *machine {
	m := &machine{state: StateIdle, trace: []State{StateIdle}, observe: observe}
	if observe != nil {
		observe(StateIdle)
	}
	return m
}

func (m *machine) to(next State) {
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("sync round: illegal transition %s -> %s", m.state, next))
	}
	m.state = next
	m.trace = append(m.trace, next)
	if m.observe != nil {
		m.observe(next)
	}
}
