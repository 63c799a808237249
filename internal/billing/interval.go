// Package billing implements the periodic subscription state machine of
// spec.md §4.11, grounded directly on the teacher's
// internal/subscriptions/service.go and types.go: CalculatePeriodEnd's
// time.AddDate-based interval arithmetic is generalized here to the
// spec's fixed-second intervals, and the success/failure branches of
// HandleStripeRenewal/HandleStripePaymentFailed are generalized into the
// full create-invoice -> attempt-payment -> advance-or-dun cycle.
package billing

// Interval durations in seconds, per spec.md §4.11 (fixed, not calendar
// arithmetic, unlike the teacher's time.AddDate-based version).
const (
	secondsDay   = 86_400
	secondsWeek  = 604_800
	secondsMonth = 2_592_000
	secondsYear  = 31_536_000
)

func intervalSeconds(interval string) int64 {
	switch interval {
	case "day":
		return secondsDay
	case "week":
		return secondsWeek
	case "year":
		return secondsYear
	default: // month, and any unrecognized value
		return secondsMonth
	}
}

// addInterval computes the next period end, per spec.md §4.11:
// current_period_end + duration(interval) x interval_count.
func addInterval(currentPeriodEnd int64, interval string, count int) int64 {
	if count < 1 {
		count = 1
	}
	return currentPeriodEnd + intervalSeconds(interval)*int64(count)
}

// retryDelay returns the dunning delay in seconds for the given
// attempt_count, per spec.md §4.11's fixed table.
func retryDelay(attemptCount int) int64 {
	switch attemptCount {
	case 1:
		return 86_400
	case 2:
		return 259_200
	case 3:
		return 432_000
	default:
		return 604_800
	}
}
