package chaos

// declineMessages maps chaos decline codes to the fixed human-readable
// strings of spec.md §4.11. This is the canonical pre-declared code set:
// Configure rejects any PaymentConfig.DeclineCodes/DeclineWeights entry
// not present here, per spec.md §4.10. Grounded on the decline-code
// vocabulary the teacher's internal/stripe test doubles already use for
// card errors.
var declineMessages = map[string]string{
	"card_declined":      "Your card was declined.",
	"insufficient_funds": "Your card has insufficient funds.",
	"expired_card":       "Your card has expired.",
	"incorrect_cvc":      "Your card's security code is incorrect.",
	"processing_error":   "An error occurred while processing your card. Try again in a little bit.",
	"fraudulent":         "Your card was declined.",
	"lost_card":          "Your card was declined.",
	"stolen_card":        "Your card was declined.",
	"generic_decline":    "Your card was declined.",
	"do_not_honor":       "Your card was declined.",
	"call_issuer":        "Your card was declined. Contact your card issuer for more information.",
}

const genericDeclineMessage = "Your card was declined."

// DeclineMessage looks up the fixed message for a decline code, falling
// back to the generic message for codes outside the table, per spec.md
// §4.11.
func DeclineMessage(code string) string {
	if msg, ok := declineMessages[code]; ok {
		return msg
	}
	return genericDeclineMessage
}

// IsDeclineCode reports whether code is one of the pre-declared decline
// codes Configure accepts.
func IsDeclineCode(code string) bool {
	_, ok := declineMessages[code]
	return ok
}
