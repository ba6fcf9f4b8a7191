package sales

// DerivePaymentStatus is the single payment-status derivation used at
// sale creation, after every correction, and on explicit payment
// updates. Rule order matters: a total at or below the collected amount
// is fully paid even when both are zero; the full-inactivity override
// (see recomputeSale) runs after this and may still force annulee.
func DerivePaymentStatus(totalAmount, amountPaid float64) PaymentStatus {
	switch {
	case totalAmount <= amountPaid:
		return PaymentFull
	case amountPaid > 0:
		return PaymentPartial
	default:
		return PaymentAwaiting
	}
}
