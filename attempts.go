package authgate

// initialAttemptsCount is the budget a device or second factor receives when a
// fresh challenge is issued. Exhausting it bans the subject until the budget
// is explicitly reset by a successful verification elsewhere.
const initialAttemptsCount int64 = 100

// banned reports whether an attempt budget is exhausted.
func banned(attemptsLeft int64) bool {
	return attemptsLeft <= 0
}

// spendAttempt interprets the value returned by an atomic decrement. The
// decrement happens before the comparison, so remaining reflects the state
// after this failed try; a negative remaining means the subject was already
// banned when the try arrived.
func spendAttempt(remaining int64) (attemptsLeft int64, nowBanned bool) {
	if remaining < 0 {
		return 0, true
	}
	return remaining, remaining == 0
}
