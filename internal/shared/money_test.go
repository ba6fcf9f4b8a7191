package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	// French grouping uses narrow no-break spaces between thousands.
	assert.Equal(t, "80 000", FormatAmount(80000))
	assert.Equal(t, "0", FormatAmount(0))
	assert.Equal(t, "1 234 568", FormatAmount(1234567.8))
}
