package ledger

import "github.com/jogardn/selfcheckout/pkg/models"

// allowedTransitions is the order lifecycle: cancelled and refunded are
// terminal, and a paid order can only move to refunded.
var allowedTransitions = map[string][]string{
	models.StatusPending:   {models.StatusPaid, models.StatusCancelled},
	models.StatusPaid:      {models.StatusRefunded},
	models.StatusCancelled: {},
	models.StatusRefunded:  {},
}

func ValidTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
