// Package ledger provides the append-only audit trail for tracked balances:
// stock quantities and COD cash custody both flow through it.
package ledger

import (
	"errors"
	"time"
)

// Action enumerates supported balance mutations.
type Action string

const (
	// ActionAdd represents an inbound increase.
	ActionAdd Action = "ADD"
	// ActionUse represents consumption, e.g. stock shipped with an order.
	ActionUse Action = "USE"
	// ActionAdjust indicates manual corrections.
	ActionAdjust Action = "ADJUST"
	// ActionUpdate records a direct balance restatement.
	ActionUpdate Action = "UPDATE"
)

// IsValid checks the action is one of the defined values.
func (a Action) IsValid() bool {
	switch a {
	case ActionAdd, ActionUse, ActionAdjust, ActionUpdate:
		return true
	default:
		return false
	}
}

// Entry is an immutable audit record of one balance change.
type Entry struct {
	ID              string    `json:"id"`
	SubjectType     string    `json:"subject_type"`
	SubjectID       string    `json:"subject_id"`
	Action          Action    `json:"action"`
	Delta           float64   `json:"delta"`
	PreviousBalance float64   `json:"previous_balance"`
	NewBalance      float64   `json:"new_balance"`
	ActorID         int64     `json:"actor_id"`
	Note            string    `json:"note,omitempty"`
	RefKey          string    `json:"ref_key,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Balance summarises the current state of one subject.
type Balance struct {
	SubjectType string
	SubjectID   string
	Balance     float64
	UpdatedAt   time.Time
}

// AppendInput describes a requested balance change.
type AppendInput struct {
	SubjectType string
	SubjectID   string
	Action      Action
	Delta       float64
	ActorID     int64
	Note        string
	// RefKey deduplicates at-least-once callers; entries with an already
	// recorded RefKey are rejected with ErrDuplicateRef.
	RefKey string
}

// ReplayResult compares a replayed balance against the stored one.
type ReplayResult struct {
	SubjectType string  `json:"subject_type"`
	SubjectID   string  `json:"subject_id"`
	Replayed    float64 `json:"replayed"`
	Stored      float64 `json:"stored"`
	Entries     int     `json:"entries"`
}

// InSync reports whether replayed and stored balances agree.
func (r ReplayResult) InSync() bool {
	const tolerance = 1e-6
	diff := r.Replayed - r.Stored
	return diff < tolerance && diff > -tolerance
}

var (
	// ErrNegativeBalance is returned when a change would drive a guarded
	// balance below zero.
	ErrNegativeBalance = errors.New("ledger: negative balance not allowed")
	// ErrInvalidDelta indicates a zero delta.
	ErrInvalidDelta = errors.New("ledger: delta must be non zero")
	// ErrInvalidAction indicates an unknown action type.
	ErrInvalidAction = errors.New("ledger: invalid action type")
	// ErrDuplicateRef indicates the ref key was already applied.
	ErrDuplicateRef = errors.New("ledger: reference already recorded")
	// ErrBalanceNotFound indicates no balance row exists yet.
	ErrBalanceNotFound = errors.New("ledger: balance not found")
)
