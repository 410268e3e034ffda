package lifecycle

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of an order.
type State string

const (
	StatePlaced         State = "PLACED"
	StateAccepted       State = "ACCEPTED"
	StateRejected       State = "REJECTED"
	StatePreparing      State = "PREPARING"
	StateOutForDelivery State = "OUT_FOR_DELIVERY"
	StateDelivered      State = "DELIVERED"
	StateCancelled      State = "CANCELLED"
)

// Action is a request to move an order along its lifecycle.
type Action string

const (
	ActionAccept         Action = "ACCEPT"
	ActionReject         Action = "REJECT"
	ActionStartPreparing Action = "START_PREPARING"
	ActionDispatch       Action = "DISPATCH"
	ActionDeliver        Action = "DELIVER"
	ActionCancel         Action = "CANCEL"
)

// Event types carried on the wire. The set is closed; consumers dispatch on it
// exhaustively and ignore types they do not know.
const (
	EventOrderPlaced       = "ORDER_PLACED"
	EventOrderAccepted     = "ORDER_ACCEPTED"
	EventOrderRejected     = "ORDER_REJECTED"
	EventOrderStateChanged = "ORDER_STATE_CHANGED"
	EventOrderCancelled    = "ORDER_CANCELLED"
)

// ErrInvalidTransition is returned for any edge not in the transition table.
// It is a business error: callers must not retry.
var ErrInvalidTransition = errors.New("invalid order transition")

// transitions is the single authority on legal lifecycle edges. Every writer of
// order state consults it before committing.
var transitions = map[State]map[Action]State{
	StatePlaced: {
		ActionAccept: StateAccepted,
		ActionReject: StateRejected,
		ActionCancel: StateCancelled,
	},
	StateAccepted: {
		ActionStartPreparing: StatePreparing,
		ActionCancel:         StateCancelled,
	},
	StatePreparing: {
		ActionDispatch: StateOutForDelivery,
		ActionCancel:   StateCancelled,
	},
	StateOutForDelivery: {
		ActionDeliver: StateDelivered,
	},
}

// Transition returns the state an order moves to when action is applied in
// current. It is total and side-effect free; illegal edges return
// ErrInvalidTransition with both operands in the message.
func Transition(current State, action Action) (State, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current)
}

// EventTypeFor maps an applied action to the event type its outbox row carries.
func EventTypeFor(action Action) string {
	switch action {
	case ActionAccept:
		return EventOrderAccepted
	case ActionReject:
		return EventOrderRejected
	case ActionCancel:
		return EventOrderCancelled
	default:
		return EventOrderStateChanged
	}
}

// Terminal reports whether no action can move the order out of state.
func Terminal(state State) bool {
	return len(transitions[state]) == 0
}
