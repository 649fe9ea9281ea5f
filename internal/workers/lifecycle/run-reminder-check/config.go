package runremindercheck

import (
	"time"

	"loan-lifecycle/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig gives the scan a longer default than the other workers; it
// walks every loan in repayment.
func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Config{Timeout: timeout}
}
