package pipeline

import (
	"errors"
	"fmt"
)

var ErrIllegalTransition = errors.New("illegal state transition")

// State is the position of one article in the processing chain.
type State int

const (
	Pending State = iota
	Validating
	Extracting
	ExtractionValidating
	Normalizing
	Ingesting
	Done
	Skipped
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Validating:
		return "validating"
	case Extracting:
		return "extracting"
	case ExtractionValidating:
		return "extraction_validating"
	case Normalizing:
		return "normalizing"
	case Ingesting:
		return "ingesting"
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Ingesting has no exit to Failed: an article whose ingest errored stays in
// Ingesting, is not checkpointed and is re-ingested on the next run.
var transitions = map[State][]State{
	Pending:              {Validating, Skipped},
	Validating:           {Extracting, Failed},
	Extracting:           {ExtractionValidating, Failed},
	ExtractionValidating: {Normalizing, Failed},
	Normalizing:          {Ingesting, Failed},
	Ingesting:            {Done},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return to, nil
}
