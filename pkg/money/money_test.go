package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMajor(t *testing.T) {
	assert.Equal(t, "50.00", FormatMajor(5000, "USD"))
	assert.Equal(t, "-9999.99", FormatMajor(-999999, "EUR"))
	assert.Equal(t, "0.05", FormatMajor(5, "USD"))
	assert.Equal(t, "5000", FormatMajor(5000, "JPY"))
}

func TestNewAmount(t *testing.T) {
	amt := NewAmount(123456, "USD")
	assert.Equal(t, int64(123456), amt.Minor)
	assert.Equal(t, "1234.56", amt.Major)
	assert.Equal(t, "USD", amt.Currency.String())
}
