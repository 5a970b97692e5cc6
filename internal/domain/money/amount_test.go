package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1234.56", "1234.56"},
		{"R$ 120,00", "120"},
		{"R$ 1.234.567,89", "1234567.89"},
		{"1,234.56", "1234.56"},
		{"120", "120"},
		{"0,5", "0.5"},
		{"1.234", "1234"},
		{"  R$ 45,10 ", "45.1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"", "R$", "abc", "-"} {
		_, err := Normalize(in)
		assert.True(t, errors.Is(err, ErrInvalidAmount), in)
	}
}

func TestMatches(t *testing.T) {
	expected := decimal.RequireFromString("120.00")

	assert.True(t, Matches(expected, "R$ 120,00", DefaultTolerance))
	assert.True(t, Matches(expected, "120.0009", DefaultTolerance))
	assert.False(t, Matches(expected, "120,0011", DefaultTolerance))
	assert.False(t, Matches(expected, "R$ 121,00", DefaultTolerance))
	assert.False(t, Matches(expected, "sem valor", DefaultTolerance))
}

func TestMatches_ToleranceIsStrict(t *testing.T) {
	tol := decimal.RequireFromString("0.001")
	base := decimal.RequireFromString("10")

	assert.False(t, Matches(base, "10,0010", tol))
	assert.True(t, Matches(base, "9.9991", tol))
}
