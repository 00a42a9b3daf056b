package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		children []RequestStatus
		want     RequestStatus
	}{
		{"no children", nil, StatusPending},
		{"all pending", []RequestStatus{StatusPending, StatusPending}, StatusPending},
		{"all completed", []RequestStatus{StatusCompleted, StatusCompleted}, StatusCompleted},
		{"all failed", []RequestStatus{StatusFailed, StatusFailed}, StatusFailed},
		{"success wins over failure", []RequestStatus{StatusCompleted, StatusCompleted, StatusFailed}, StatusCompleted},
		{"single success among failures", []RequestStatus{StatusFailed, StatusCompleted, StatusFailed}, StatusCompleted},
		{"partial completion in progress", []RequestStatus{StatusCompleted, StatusPending}, StatusProcessing},
		{"failure with pending sibling", []RequestStatus{StatusFailed, StatusPending}, StatusProcessing},
		{"processing child", []RequestStatus{StatusProcessing, StatusPending}, StatusProcessing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, DeriveStatus(tc.children))
		})
	}
}

// Once every child is terminal the derived status must be stable no matter
// how many times it is recomputed.
func TestDeriveStatusStableWhenTerminal(t *testing.T) {
	t.Parallel()

	children := []RequestStatus{StatusCompleted, StatusCompleted, StatusFailed}
	first := DeriveStatus(children)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, DeriveStatus(children))
	}
}
