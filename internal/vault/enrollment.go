package vault

import (
	"errors"
	"slices"
)

// DefaultMinNodes is the shortest pattern enrollment accepts.
const DefaultMinNodes = 4

var (
	ErrTooShort       = errors.New("vault: pattern too short")
	ErrMismatch       = errors.New("vault: confirmation does not match")
	ErrEnrollmentDone = errors.New("vault: enrollment already complete")
)

// Step is the position in the enrollment flow.
type Step int

const (
	StepDraw Step = iota + 1
	StepConfirm
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepDraw:
		return "draw"
	case StepConfirm:
		return "confirm"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Enrollment sets a new pattern in two steps: draw it, then draw it again.
// A mismatched confirmation starts over.
type Enrollment struct {
	vault    *Vault
	minNodes int
	step     Step
	first    []int
}

// NewEnrollment starts an enrollment that saves into v. A non-positive
// minNodes uses DefaultMinNodes.
func NewEnrollment(v *Vault, minNodes int) *Enrollment {
	if minNodes <= 0 {
		minNodes = DefaultMinNodes
	}
	return &Enrollment{vault: v, minNodes: minNodes, step: StepDraw}
}

// Step returns the current step.
func (e *Enrollment) Step() Step { return e.step }

// MinNodes returns the minimum pattern length.
func (e *Enrollment) MinNodes() int { return e.minNodes }

// Submit feeds one drawn pattern and returns the step that follows. On a
// storage failure during the final save the flow stays at StepConfirm so
// the confirmation can be retried.
func (e *Enrollment) Submit(seq []int) (Step, error) {
	switch e.step {
	case StepDraw:
		if len(seq) < e.minNodes {
			return e.step, ErrTooShort
		}
		e.first = slices.Clone(seq)
		e.step = StepConfirm
		return e.step, nil

	case StepConfirm:
		if !slices.Equal(seq, e.first) {
			e.Restart()
			return e.step, ErrMismatch
		}
		if err := e.vault.Save(e.first); err != nil {
			return e.step, err
		}
		e.first = nil
		e.step = StepDone
		return e.step, nil

	default:
		return e.step, ErrEnrollmentDone
	}
}

// Restart discards the first drawing and returns to StepDraw.
func (e *Enrollment) Restart() {
	e.first = nil
	e.step = StepDraw
}
