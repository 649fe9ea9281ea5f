package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const databaseYAML = `
database:
  postgres:
    host: localhost
    database: loans
    user: loans
  redis:
    address: localhost:6379
`

const baseYAML = databaseYAML + `
identity:
  pepper: ${TEST_LOAN_PEPPER}
workers:
  submit-loan-application:
    enabled: true
    max_jobs_active: 7
  run-reminder-check:
    enabled: false
    timeout: 300000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_LOAN_PEPPER", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Identity.Pepper)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, 24*60, cfg.Risk.VelocityWindow)
	assert.Equal(t, "percentage", cfg.Fees.Mode)
	assert.Equal(t, "2.5", cfg.Fees.Rate)
	assert.Equal(t, "USD", cfg.Fees.Currency)
	assert.Equal(t, 30, cfg.Loans.DefaultTermDays)
	assert.Equal(t, "09:00", cfg.Scheduler.RunAt)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 30, cfg.Scheduler.DelinquencyDays)
	assert.Equal(t, "loan-lifecycle", cfg.Observability.ServiceName)
	assert.Equal(t, "loan-applications", cfg.Database.Elasticsearch.Index)

	submit := GetWorkerConfig(cfg, "submit-loan-application")
	assert.True(t, submit.Enabled)
	assert.Equal(t, 7, submit.MaxJobsActive)
	assert.Equal(t, 30000, submit.Timeout)
	assert.Equal(t, 3, submit.MaxRetries)

	assert.False(t, IsWorkerEnabled(cfg, "run-reminder-check"))
	assert.Equal(t, 5*time.Minute, GetDuration(GetWorkerConfig(cfg, "run-reminder-check").Timeout))
}

func TestGetWorkerConfig_Unconfigured(t *testing.T) {
	cfg := &Config{}

	wc := GetWorkerConfig(cfg, "confirm-fee-payment")
	assert.Equal(t, WorkerConfig{Enabled: true, MaxJobsActive: 5, Timeout: 30000, MaxRetries: 3}, wc)
	assert.True(t, IsWorkerEnabled(cfg, "confirm-fee-payment"))
}

func TestLoadFromFile_Validation(t *testing.T) {
	t.Setenv("TEST_LOAN_PEPPER", "s3cret")

	tests := []struct {
		name    string
		extra   string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown fee mode",
			extra:   "fees:\n  mode: tiered\n",
			wantErr: "fees.mode",
		},
		{
			name:    "bad run time",
			extra:   "scheduler:\n  run_at: \"9am\"\n",
			wantErr: "scheduler.run_at",
		},
		{
			name:    "unknown timezone",
			extra:   "scheduler:\n  timezone: Mars/Olympus\n",
			wantErr: "scheduler.timezone",
		},
		{
			name:    "camunda without broker",
			extra:   "camunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "elasticsearch without addresses",
			yaml:    databaseYAML + "  elasticsearch:\n    enabled: true\nidentity:\n  pepper: x\n",
			wantErr: "database.elasticsearch.addresses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.yaml
			if content == "" {
				content = baseYAML + tt.extra
			}
			_, err := LoadFromFile(writeConfig(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingPepper(t *testing.T) {
	t.Setenv("IDENTITY_PEPPER", "")

	_, err := LoadFromFile(writeConfig(t, databaseYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity.pepper")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "loans", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=loans sslmode=disable", p.GetDSN())
}
