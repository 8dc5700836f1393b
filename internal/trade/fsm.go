package trade

import "realmsync.io/internal/model"

type State string

const (
	StateNegotiating State = "negotiating"
	StateConfirmedA  State = "confirmed_a"
	StateConfirmedB  State = "confirmed_b"
	StateCommitting  State = "committing"
	StateCommitted   State = "committed"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Terminal states are removed from the service as soon as they are reached.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled || s == StateFailed
}

type event int

const (
	evStage event = iota
	evConfirmA
	evConfirmB
	evCommitted
	evFailed
	evCancel
)

// transition is the only place trade states change.
func transition(s State, ev event) (State, error) {
	switch ev {
	case evStage:
		switch s {
		case StateNegotiating, StateConfirmedA, StateConfirmedB:
			return StateNegotiating, nil
		}
	case evConfirmA:
		switch s {
		case StateNegotiating, StateConfirmedA:
			return StateConfirmedA, nil
		case StateConfirmedB:
			return StateCommitting, nil
		}
	case evConfirmB:
		switch s {
		case StateNegotiating, StateConfirmedB:
			return StateConfirmedB, nil
		case StateConfirmedA:
			return StateCommitting, nil
		}
	case evCommitted:
		if s == StateCommitting {
			return StateCommitted, nil
		}
	case evFailed:
		if s == StateCommitting {
			return StateFailed, nil
		}
	case evCancel:
		switch s {
		case StateNegotiating, StateConfirmedA, StateConfirmedB:
			return StateCancelled, nil
		}
	}
	return s, model.Wrap(model.ErrStale, "trade is "+string(s))
}
