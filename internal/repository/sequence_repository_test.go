package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTicketNumber(t *testing.T) {
	assert.Equal(t, "INC0000001", FormatTicketNumber(KindIncident, 1))
	assert.Equal(t, "REQ0000001", FormatTicketNumber(KindRequest, 1))
	assert.Equal(t, "INC0000042", FormatTicketNumber(KindIncident, 42))
	assert.Equal(t, "REQ1234567", FormatTicketNumber(KindRequest, 1234567))
	assert.Equal(t, "INC10000000", FormatTicketNumber(KindIncident, 10000000))
}
