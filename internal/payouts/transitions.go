package payouts

import "github.com/angelmondragon/settlement-backend/pkg/enums"

var transitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusPending:    {enums.PayoutStatusProcessing, enums.PayoutStatusPaid, enums.PayoutStatusFailed},
	enums.PayoutStatusProcessing: {enums.PayoutStatusPaid, enums.PayoutStatusFailed},
	enums.PayoutStatusOnHold:     {enums.PayoutStatusPending, enums.PayoutStatusFailed},
	enums.PayoutStatusFailed:     {enums.PayoutStatusPending},
	enums.PayoutStatusPaid:       nil,
}

// CanTransition reports whether a payout may move from one status to another.
func CanTransition(from, to enums.PayoutStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// sourcesOf lists every status that may move into to.
func sourcesOf(to enums.PayoutStatus) []enums.PayoutStatus {
	var out []enums.PayoutStatus
	for _, from := range []enums.PayoutStatus{
		enums.PayoutStatusPending,
		enums.PayoutStatusProcessing,
		enums.PayoutStatusOnHold,
		enums.PayoutStatusFailed,
		enums.PayoutStatusPaid,
	} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
