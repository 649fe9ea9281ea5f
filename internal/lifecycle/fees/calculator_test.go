package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/config"
)

func TestCalculator_Percentage(t *testing.T) {
	c, err := NewCalculator(config.FeeConfig{Mode: ModePercentage, Rate: "2.5", Currency: "USD"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"round amount", 500000, 12500},
		{"rounds half up", 1020, 26},
		{"rounds down", 1001, 25},
		{"zero amount", 0, 0},
		{"negative amount", -100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Fee(tt.amount))
		})
	}
}

func TestCalculator_Clamp(t *testing.T) {
	c, err := NewCalculator(config.FeeConfig{Mode: ModePercentage, Rate: "1", MinFee: 500, MaxFee: 10000})
	require.NoError(t, err)

	assert.Equal(t, int64(500), c.Fee(1000))
	assert.Equal(t, int64(10000), c.Fee(5000000))
	assert.Equal(t, int64(2000), c.Fee(200000))
}

func TestCalculator_Fixed(t *testing.T) {
	c, err := NewCalculator(config.FeeConfig{Mode: ModeFixed, Rate: "4999", Currency: "USD"})
	require.NoError(t, err)

	q := c.Quote(100000)
	assert.Equal(t, int64(4999), q.Fee)
	assert.Equal(t, int64(104999), q.Total)
	assert.Equal(t, "fixed", q.Mode)
	assert.Equal(t, "USD", q.Currency)
}

func TestNewCalculator_Invalid(t *testing.T) {
	tests := []config.FeeConfig{
		{Mode: ModePercentage, Rate: "abc"},
		{Mode: ModePercentage, Rate: "-1"},
		{Mode: "tiered", Rate: "1"},
		{Mode: ModeFixed, Rate: "1", MinFee: 100, MaxFee: 50},
	}
	for _, cfg := range tests {
		_, err := NewCalculator(cfg)
		assert.Error(t, err, cfg)
	}
}
