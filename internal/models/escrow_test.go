package models

import "testing"

func TestIsValidEscrowTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStatusPending, EscrowStatusHeld, true},
		{EscrowStatusPending, EscrowStatusReady, true},
		{EscrowStatusHeld, EscrowStatusReady, true},
		{EscrowStatusHeld, EscrowStatusReleased, true},
		{EscrowStatusReady, EscrowStatusReleased, true},

		// Failure and refund paths
		{EscrowStatusPending, EscrowStatusFailed, true},
		{EscrowStatusHeld, EscrowStatusRefunded, true},
		{EscrowStatusReady, EscrowStatusRefunded, true},

		// Backward or terminal transitions are never allowed
		{EscrowStatusHeld, EscrowStatusPending, false},
		{EscrowStatusReady, EscrowStatusHeld, false},
		{EscrowStatusReady, EscrowStatusPending, false},
		{EscrowStatusReleased, EscrowStatusRefunded, false},
		{EscrowStatusReleased, EscrowStatusPending, false},
		{EscrowStatusRefunded, EscrowStatusReleased, false},
		{EscrowStatusFailed, EscrowStatusPending, false},
		{EscrowStatusFailed, EscrowStatusHeld, false},

		// Funds can only fail before they are captured
		{EscrowStatusHeld, EscrowStatusFailed, false},
		{EscrowStatusReady, EscrowStatusFailed, false},

		// Unknown statuses
		{"nonexistent", EscrowStatusHeld, false},
		{EscrowStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidEscrowTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidEscrowTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllEscrowStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		EscrowStatusPending, EscrowStatusHeld, EscrowStatusReady,
		EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusFailed,
	}

	for _, status := range allStatuses {
		if _, ok := ValidEscrowTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidEscrowTransitions map", status)
		}
	}
}

func TestTerminalEscrowStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusFailed}
	for _, status := range terminal {
		transitions := ValidEscrowTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}
