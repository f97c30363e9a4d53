package model

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Run Types
// -----------------------------------------------------------------------------

// WorkUnit is one fetch/transform/load task. Never persisted.
type WorkUnit struct {
	Symbol   string
	Endpoint EndpointKind
}

func (u WorkUnit) String() string {
	return u.Symbol + "/" + u.Endpoint.String()
}

// UnitState is the lifecycle state of a WorkUnit within one run.
type UnitState int

const (
	StatePending UnitState = iota
	StateInFlight
	StateSucceeded
	StateFailed
)

func (s UnitState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s UnitState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether s -> to is a legal move.
// Pending may fail directly (registration failure, cancellation before dispatch).
func (s UnitState) CanTransition(to UnitState) bool {
	switch s {
	case StatePending:
		return to == StateInFlight || to == StateFailed
	case StateInFlight:
		return to.Terminal()
	default:
		return false
	}
}

// OutcomeStatus is the final status of a unit.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusFailed  OutcomeStatus = "failed"
)

// Stage names the step of a unit's pipeline an outcome refers to.
type Stage string

const (
	StageRegister  Stage = "register"
	StageDispatch  Stage = "dispatch"
	StageRateLimit Stage = "rate_limit"
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StagePersist   Stage = "persist"
	StageDone      Stage = "done"
)

// RunOutcome is the terminal record of one WorkUnit.
type RunOutcome struct {
	Unit        WorkUnit
	Status      OutcomeStatus
	Stage       Stage  // stage that failed, or StageDone
	Reason      string // empty on success
	RowsWritten int
	Attempts    int // fetch attempts made
	Duration    time.Duration
}

// Succeeded reports whether the unit completed.
func (o RunOutcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
