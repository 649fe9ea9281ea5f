// Package fees prices the processing fee charged between approval and
// disbursement. Configuration is read once at construction and never mutated.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"loan-lifecycle/internal/common/config"
)

const (
	ModePercentage = "percentage"
	ModeFixed      = "fixed"
)

var hundred = decimal.NewFromInt(100)

// Config is the immutable view of the fee configuration.
type Config struct {
	Mode     string
	Rate     decimal.Decimal
	MinFee   int64
	MaxFee   int64
	Currency string
}

type Quote struct {
	Amount   int64  `json:"amount"`
	Fee      int64  `json:"fee"`
	Total    int64  `json:"total"`
	Mode     string `json:"mode"`
	Rate     string `json:"rate"`
	Currency string `json:"currency"`
}

type Calculator struct {
	cfg Config
}

func NewCalculator(cfg config.FeeConfig) (*Calculator, error) {
	rate, err := decimal.NewFromString(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid fee rate %q: %w", cfg.Rate, err)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("fee rate must not be negative")
	}
	switch cfg.Mode {
	case ModePercentage, ModeFixed:
	default:
		return nil, fmt.Errorf("unknown fee mode %q", cfg.Mode)
	}
	if cfg.MaxFee > 0 && cfg.MinFee > cfg.MaxFee {
		return nil, fmt.Errorf("min_fee %d exceeds max_fee %d", cfg.MinFee, cfg.MaxFee)
	}

	return &Calculator{cfg: Config{
		Mode:     cfg.Mode,
		Rate:     rate,
		MinFee:   cfg.MinFee,
		MaxFee:   cfg.MaxFee,
		Currency: cfg.Currency,
	}}, nil
}

func (c *Calculator) Config() Config {
	return c.cfg
}

// Fee returns the fee in minor units. Percentage fees round half away from
// zero to the nearest cent, then clamp to [MinFee, MaxFee]. MaxFee 0 means
// no ceiling.
func (c *Calculator) Fee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	var fee decimal.Decimal
	switch c.cfg.Mode {
	case ModeFixed:
		fee = c.cfg.Rate.Round(0)
	default:
		fee = decimal.NewFromInt(amount).Mul(c.cfg.Rate).Div(hundred).Round(0)
	}

	out := fee.IntPart()
	if out < c.cfg.MinFee {
		out = c.cfg.MinFee
	}
	if c.cfg.MaxFee > 0 && out > c.cfg.MaxFee {
		out = c.cfg.MaxFee
	}
	return out
}

func (c *Calculator) Quote(amount int64) Quote {
	fee := c.Fee(amount)
	return Quote{
		Amount:   amount,
		Fee:      fee,
		Total:    amount + fee,
		Mode:     c.cfg.Mode,
		Rate:     c.cfg.Rate.String(),
		Currency: c.cfg.Currency,
	}
}
