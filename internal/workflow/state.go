package workflow

import "fmt"

// State is a step of the recruiting saga.
type State string

const (
	StateInit             State = "init"
	StateValidationFailed State = "validation_failed"
	StateAuthenticating   State = "authenticating"
	StateAuthenticated    State = "authenticated"
	StateAuthFailed       State = "auth_failed"
	StateSearching        State = "searching"
	StateSearchFailed     State = "search_failed"
	StateSearchEmpty      State = "search_empty"
	StateCandidatesFound  State = "candidates_found"
	StateSaving           State = "saving"
	StateComplete         State = "complete"
)

// transitions lists the legal successors of every non-terminal state.
var transitions = map[State][]State{
	StateInit:            {StateAuthenticating, StateValidationFailed},
	StateAuthenticating:  {StateAuthenticated, StateAuthFailed},
	StateAuthenticated:   {StateSearching},
	StateSearching:       {StateSearchFailed, StateSearchEmpty, StateCandidatesFound},
	StateCandidatesFound: {StateSaving},
	StateSaving:          {StateComplete},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Failed reports whether s is a terminal failure state. SearchEmpty is a
// successful zero-result run.
func (s State) Failed() bool {
	switch s {
	case StateValidationFailed, StateAuthFailed, StateSearchFailed:
		return true
	}
	return false
}

// mustTransition panics on an illegal transition; reaching one is a bug in the orchestrator.
func mustTransition(from, to State) {
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("workflow: illegal transition %s -> %s", from, to))
	}
}
