package gameerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the room, game and ws packages so neither side
// has to import the other to classify a failure.
var (
	ErrRuleViolation    = errors.New("rule violation")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrCapacityExceeded = errors.New("room is full")
	ErrSessionClosed    = errors.New("room closed")
)

// RuleViolation reports an action the rules reject. The state it was checked
// against is left untouched.
type RuleViolation struct {
	Reason string
}

func (e *RuleViolation) Error() string {
	return e.Reason
}

// Is makes errors.Is(err, ErrRuleViolation) hold for every *RuleViolation.
func (e *RuleViolation) Is(target error) bool {
	return target == ErrRuleViolation
}

// Violation builds a *RuleViolation with a formatted reason.
func Violation(format string, args ...any) error {
	return &RuleViolation{Reason: fmt.Sprintf(format, args...)}
}
