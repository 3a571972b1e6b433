// Package cod tracks cash-on-delivery money from courier custody to the
// merchant's bank account. Cash handling cannot be observed automatically,
// so every transition is an explicit administrative confirmation.
package cod

import "errors"

// State is the custody position of a COD order's cash.
type State string

const (
	// StatePending means cash has not been collected yet.
	StatePending State = "PENDING"
	// StateCollectedByCourier means the courier holds the cash.
	StateCollectedByCourier State = "COLLECTED_BY_COURIER"
	// StateAwaitingSettlement means the cash is in transit to the
	// merchant's account.
	StateAwaitingSettlement State = "AWAITING_SETTLEMENT"
	// StateSettled means the amount is confirmed in the bank. This is the
	// single event that makes COD revenue eligible for recognition.
	StateSettled State = "SETTLED"
	// StateNotReceived flags an exception needing manual reconciliation.
	StateNotReceived State = "NOT_RECEIVED"
)

// stateRank orders the forward custody chain. NotReceived sits outside it.
var stateRank = map[State]int{
	StatePending:            0,
	StateCollectedByCourier: 1,
	StateAwaitingSettlement: 2,
	StateSettled:            3,
}

// IsValid checks the state is a defined value.
func (s State) IsValid() bool {
	if s == StateNotReceived {
		return true
	}
	_, ok := stateRank[s]
	return ok
}

// IsFinal reports whether no further custody transitions are possible.
func (s State) IsFinal() bool {
	return s == StateSettled
}

// CanAdvanceTo reports whether target is a legal move. Custody only moves
// forward through the defined order; NotReceived is reachable as an
// exception from any non-settled state.
func (s State) CanAdvanceTo(target State) bool {
	if target == StateNotReceived {
		return s != StateSettled
	}
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[target]
	if !ok {
		return false
	}
	return to == from+1 || (s == StateCollectedByCourier && target == StateSettled)
}

var (
	// ErrNotCOD indicates the order does not pay by cash on delivery.
	ErrNotCOD = errors.New("cod: order is not cash on delivery")
	// ErrIllegalTransition indicates the custody chain would be violated.
	ErrIllegalTransition = errors.New("cod: illegal settlement transition")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("cod: order not found")
)
