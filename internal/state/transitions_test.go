package state

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{name: "idle to expense selecting", from: StateIdle, to: StateExpenseSelecting, expected: true},
		{name: "idle to payment awaiting amount", from: StateIdle, to: StatePaymentAwaitingAmount, expected: true},
		{name: "expense selecting keeps selecting", from: StateExpenseSelecting, to: StateExpenseSelecting, expected: true},
		{name: "expense selecting back to idle", from: StateExpenseSelecting, to: StateIdle, expected: true},
		{name: "payment awaiting amount to idle", from: StatePaymentAwaitingAmount, to: StateIdle, expected: true},
		{name: "expense selecting to payment invalid", from: StateExpenseSelecting, to: StatePaymentAwaitingAmount, expected: false},
		{name: "payment to expense selecting invalid", from: StatePaymentAwaitingAmount, to: StateExpenseSelecting, expected: false},
		{name: "unknown state to expense selecting invalid", from: State("unknown"), to: StateExpenseSelecting, expected: false},
		{name: "any state to idle emergency", from: State("whatever"), to: StateIdle, expected: true},
		{name: "any state to error emergency", from: StatePaymentAwaitingAmount, to: StateError, expected: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}

func TestPendingExpense_Toggle(t *testing.T) {
	exp := &PendingExpense{}

	exp.Toggle(1)
	exp.Toggle(2)
	exp.Toggle(1)

	if exp.IsSelected(1) {
		t.Fatalf("expected 1 to be deselected, got %v", exp.Selected)
	}
	if !exp.IsSelected(2) {
		t.Fatalf("expected 2 to be selected, got %v", exp.Selected)
	}
}
