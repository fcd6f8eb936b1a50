// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"
	"slices"
)

const (
	// StateInit is the state before anything was staged.
	StateInit State = "INIT"
	// StateStaged means the composed script is staged and the argv is built.
	StateStaged State = "STAGED"
	// StateExecuted means the target runtime exited and its result was parsed.
	StateExecuted State = "EXECUTED"
	// StateReported is the terminal success state: cleanup ran and the
	// result is final.
	StateReported State = "REPORTED"
	// StateFailed is the terminal state for invocations that could not
	// produce a result from the target runtime.
	StateFailed State = "FAILED"
)

var (
	// ErrInvalidState is returned when a State value is not recognized.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition is the sentinel error wrapped by TransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")
)

type (
	// State is an invocation lifecycle state.
	State string

	// InvalidStateError wraps ErrInvalidState.
	InvalidStateError struct {
		Value State
	}

	// TransitionError describes a rejected transition.
	TransitionError struct {
		From State
		To   State
	}

	// machine tracks the lifecycle of one invocation.
	machine struct {
		state   State
		history []State
	}
)

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %q (valid: INIT, STAGED, EXECUTED, REPORTED, FAILED)", e.Value)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func (s State) String() string { return string(s) }

// IsValid returns whether the State is one of the defined states,
// and a list of validation errors if it is not.
func (s State) IsValid() (bool, []error) {
	switch s {
	case StateInit, StateStaged, StateExecuted, StateReported, StateFailed:
		return true, nil
	default:
		return false, []error{&InvalidStateError{Value: s}}
	}
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateReported || s == StateFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	switch from {
	case StateInit:
		return to == StateStaged || to == StateFailed
	case StateStaged:
		return to == StateExecuted || to == StateFailed
	case StateExecuted:
		return to == StateReported || to == StateFailed
	default:
		return false
	}
}

func newMachine() *machine {
	return &machine{state: StateInit, history: []State{StateInit}}
}

// transition moves to `to` if and only if the move is allowed.
func (m *machine) transition(to State) error {
	if !CanTransition(m.state, to) {
		return &TransitionError{From: m.state, To: to}
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

func (m *machine) History() []State {
	return slices.Clone(m.history)
}
