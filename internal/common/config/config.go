package config

import "fmt"

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Identity      IdentityConfig          `mapstructure:"identity"`
	Risk          RiskConfig              `mapstructure:"risk"`
	Fees          FeeConfig               `mapstructure:"fees"`
	Loans         LoanConfig              `mapstructure:"loans"`
	Rules         RulesConfig             `mapstructure:"rules"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type HTTPConfig struct {
	Address      string `mapstructure:"address"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type IdentityConfig struct {
	// Pepper keys the identity hash. Rotating it orphans every stored key.
	Pepper string `mapstructure:"pepper"`
}

type RiskConfig struct {
	VelocityWindow int `mapstructure:"velocity_window"` // minutes
}

type FeeConfig struct {
	Mode     string `mapstructure:"mode"` // percentage | fixed
	Rate     string `mapstructure:"rate"` // percent for percentage mode, cents for fixed mode
	MinFee   int64  `mapstructure:"min_fee"`
	MaxFee   int64  `mapstructure:"max_fee"`
	Currency string `mapstructure:"currency"`
}

type LoanConfig struct {
	DefaultTermDays int `mapstructure:"default_term_days"`
}

type RulesConfig struct {
	SeedPath string `mapstructure:"seed_path"`
}

type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RunAt           string `mapstructure:"run_at"` // HH:MM
	Timezone        string `mapstructure:"timezone"`
	DelinquencyDays int    `mapstructure:"delinquency_days"`
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Timeout     int `mapstructure:"timeout"` // milliseconds
	MaxAttempts int `mapstructure:"max_attempts"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
