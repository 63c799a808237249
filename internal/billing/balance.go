package billing

import (
	"math"

	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// availableOnDelay is the seconds-from-now a pending charge balance
// transaction becomes available, per spec.md §4.11.1.
const availableOnDelay = 172_800

// roundCents rounds half away from zero, matching the teacher's
// money.RoundCents helper in internal/money/money.go.
func roundCents(v float64) int64 {
	if v < 0 {
		return -int64(math.Round(-v))
	}
	return int64(math.Round(v))
}

// chargeFee computes the processing fee for a successful charge, per
// spec.md §4.11.1: fee = round(amount x 0.029) + 30.
func chargeFee(amount int64) int64 {
	return roundCents(float64(amount)*0.029) + 30
}

// chargeBalanceTransaction builds the balance-transaction fields for a
// successful charge of amount/currency, created at now.
func chargeBalanceTransaction(amount int64, currency string, chargeID string, now int64) (record store.Record, fee int64) {
	fee = chargeFee(amount)
	net := amount - fee
	return store.Record{
		"amount":       amount,
		"fee":          fee,
		"net":          net,
		"currency":     currency,
		"status":       "pending",
		"available_on": now + availableOnDelay,
		"type":         "charge",
		"source":       chargeID,
	}, fee
}

// refundBalanceTransaction builds the balance-transaction fields for a
// refund, per spec.md §4.11.1: the refunded fee is pro-rated against the
// original charge's fee and amount.
func refundBalanceTransaction(refundAmount, originalAmount, originalFee int64, refundID string, now int64) store.Record {
	var fee int64
	if originalAmount != 0 {
		fee = -roundCents(float64(originalFee) * float64(refundAmount) / float64(originalAmount))
	}
	net := -refundAmount - fee
	return store.Record{
		"amount":       -refundAmount,
		"fee":          fee,
		"net":          net,
		"status":       "available",
		"available_on": now,
		"type":         "refund",
		"source":       refundID,
	}
}
