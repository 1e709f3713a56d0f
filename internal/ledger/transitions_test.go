package ledger

import (
	"testing"

	"github.com/jogardn/selfcheckout/pkg/models"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.StatusPending, models.StatusPaid, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusPending, models.StatusRefunded, false},
		{models.StatusPaid, models.StatusRefunded, true},
		{models.StatusPaid, models.StatusCancelled, false},
		{models.StatusPaid, models.StatusPending, false},
		{models.StatusCancelled, models.StatusPaid, false},
		{models.StatusCancelled, models.StatusPending, false},
		{models.StatusRefunded, models.StatusPaid, false},
		{models.StatusPending, models.StatusPending, false},
		{"bogus", models.StatusPaid, false},
	}

	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// Every status reachable by some transition must be a known status, so
// the SetStatus reverse lookup can't silently accept junk.
func TestTransitionTableOnlyNamesKnownStatuses(t *testing.T) {
	for from, nexts := range allowedTransitions {
		if !models.ValidStatus(from) {
			t.Errorf("Unknown source status %q in transition table", from)
		}
		for _, next := range nexts {
			if !models.ValidStatus(next) {
				t.Errorf("Unknown target status %q in transition table", next)
			}
		}
	}
}
