package payouts

import "github.com/angelmondragon/escrowledger/pkg/enums"

var transitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusCancelled},
	enums.PayoutStatusProcessing: {enums.PayoutStatusCompleted, enums.PayoutStatusFailed},
}

// CanTransition is the single source of legal payout status edges.
func CanTransition(from, to enums.PayoutStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
