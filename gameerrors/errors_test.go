package gameerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestViolationMatchesSentinel(t *testing.T) {
	err := Violation("not your turn")
	if !errors.Is(err, ErrRuleViolation) {
		t.Fatal("expected errors.Is(err, ErrRuleViolation)")
	}
	if err.Error() != "not your turn" {
		t.Errorf("expected reason as message, got %q", err.Error())
	}

	wrapped := fmt.Errorf("play card: %w", err)
	var rv *RuleViolation
	if !errors.As(wrapped, &rv) {
		t.Fatal("expected errors.As to find *RuleViolation through wrapping")
	}
	if rv.Reason != "not your turn" {
		t.Errorf("expected reason 'not your turn', got %q", rv.Reason)
	}
}

func TestViolationDoesNotMatchOtherSentinels(t *testing.T) {
	err := Violation("x")
	if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrCapacityExceeded) {
		t.Error("rule violation should only match ErrRuleViolation")
	}
}
