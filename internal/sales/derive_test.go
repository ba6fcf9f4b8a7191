package sales

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name  string
		total float64
		paid  float64
		want  PaymentStatus
	}{
		{"nothing paid", 80000, 0, PaymentAwaiting},
		{"partial", 150000, 50000, PaymentPartial},
		{"exact", 80000, 80000, PaymentFull},
		{"overpaid after total shrank", 60000, 80000, PaymentFull},
		{"total shrank to zero", 0, 50000, PaymentFull},
		{"zero total zero paid", 0, 0, PaymentFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivePaymentStatus(tc.total, tc.paid))
		})
	}
}

func TestItemStatusTerminal(t *testing.T) {
	assert.False(t, ItemStatusActive.Terminal())
	assert.True(t, ItemStatusCancelled.Terminal())
	assert.True(t, ItemStatusReturned.Terminal())
	assert.True(t, ItemStatusRestocked.Terminal())
}
