// Package testkit provides stub invokers, mock model endpoints and canned stage replies for tests.
package testkit

import (
	"strings"
	"testing"

	"advisor/pkg/faults"
)

// AssertFault verifies err is a classified failure of the given kind.
func AssertFault(t *testing.T, err error, kind faults.Kind) *faults.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	fe, ok := faults.As(err)
	if !ok {
		t.Fatalf("Expected a classified error, got %T: %v", err, err)
	}
	if fe.Kind != kind {
		t.Errorf("Expected error kind %s, got %s (%v)", kind, fe.Kind, err)
	}
	return fe
}

// AssertFaultAtStage verifies err is a classified failure of the given kind naming stage.
func AssertFaultAtStage(t *testing.T, err error, kind faults.Kind, stage string) {
	t.Helper()
	fe := AssertFault(t, err, kind)
	if fe.Stage != stage {
		t.Errorf("Expected failure at stage '%s', got '%s'", stage, fe.Stage)
	}
}

// AssertCalledStages verifies the stub was invoked for exactly the given stages, in order.
func AssertCalledStages(t *testing.T, inv *StageInvoker, expected ...string) {
	t.Helper()
	got := inv.Stages()
	if len(got) != len(expected) {
		t.Fatalf("Expected %d stage calls %v, got %d %v", len(expected), expected, len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected call %d to stage '%s', got '%s'", i, expected[i], got[i])
		}
	}
}

// AssertUserMessageContains verifies the user message sent to stage contains text.
func AssertUserMessageContains(t *testing.T, inv *StageInvoker, stage, text string) {
	t.Helper()
	c, ok := inv.Call(stage)
	if !ok {
		t.Fatalf("Expected stage '%s' to be invoked", stage)
	}
	if !strings.Contains(c.User, text) {
		t.Errorf("Expected user message of '%s' to contain %q", stage, text)
	}
}
