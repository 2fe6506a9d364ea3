package gesture

import (
	"time"

	"gesturelock/internal/complexity"
	"gesturelock/internal/lockout"
	"gesturelock/internal/tracker"
	"gesturelock/internal/trajectory"
)

// Outcome classifies a completed gesture.
type Outcome int

const (
	// OutcomeEmpty means no node was touched. It is not an attempt.
	OutcomeEmpty Outcome = iota
	// OutcomeCaptured means there is no verifier; the sequence is only
	// reported, as during enrollment.
	OutcomeCaptured
	OutcomeSuccess
	OutcomeFailure
	// OutcomeStorageFailure means the secret could not be read. It is not
	// counted against the user.
	OutcomeStorageFailure
	// OutcomeNotEnrolled means no secret has been stored.
	OutcomeNotEnrolled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeCaptured:
		return "captured"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeStorageFailure:
		return "storage_failure"
	case OutcomeNotEnrolled:
		return "not_enrolled"
	default:
		return "unknown"
	}
}

// Feedback is a cue for haptics or audio.
type Feedback int

const (
	FeedbackNodeActivated Feedback = iota
	FeedbackSuccess
	FeedbackFailure
	FeedbackLocked
)

func (f Feedback) String() string {
	switch f {
	case FeedbackNodeActivated:
		return "node_activated"
	case FeedbackSuccess:
		return "success"
	case FeedbackFailure:
		return "failure"
	case FeedbackLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Completion is reported when a gesture ends.
type Completion struct {
	Sequence     []int
	Complexity   complexity.Result
	Outcome      Outcome
	Success      bool
	FailureCount int
	AttemptsLeft int
	Trajectory   []trajectory.Point
	Err          error
}

// Hooks receive Lock events. They are called after the Lock's internal lock
// has been released, on the goroutine that produced the event. Progress
// during playback is reported from inside Player.Step, so OnProgress must
// not cancel the playback synchronously.
type Hooks struct {
	OnProgress func(tracker.Snapshot)
	OnComplete func(Completion)
	OnLock     func(lockout.LockEvent)
	OnUnlock   func(lockout.UnlockEvent)
	OnTick     func(remaining time.Duration)
	OnFeedback func(Feedback)
}

// EventType identifies an Event.
type EventType int

const (
	EventProgress EventType = iota
	EventComplete
	EventLock
	EventUnlock
	EventTick
	EventFeedback
)

// Event is the channel form of a hook call. Exactly one payload field is set
// for each type.
type Event struct {
	Type      EventType
	Timestamp time.Time

	Progress   *tracker.Snapshot
	Completion *Completion
	Lock       *lockout.LockEvent
	Unlock     *lockout.UnlockEvent
	Remaining  time.Duration
	Feedback   Feedback
}
