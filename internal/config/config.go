package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink names accepted by submit.sink.
const (
	SinkAPI        = "api"
	SinkPostgres   = "postgres"
	SinkSQLite     = "sqlite"
	SinkSalesforce = "salesforce"
)

// Config holds the full application configuration.
type Config struct {
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Submit     SubmitConfig     `yaml:"submit" mapstructure:"submit"`
	PinAPI     PinAPIConfig     `yaml:"pinapi" mapstructure:"pinapi"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GeocodeConfig configures the geocoding client.
type GeocodeConfig struct {
	BaseURL                 string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey                  string  `yaml:"api_key" mapstructure:"api_key"`
	Region                  string  `yaml:"region" mapstructure:"region"`
	Concurrency             int     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit               float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// SubmitConfig configures chunked submission.
type SubmitConfig struct {
	ChunkSize int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	DelayMs   int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	Sink      string `yaml:"sink" mapstructure:"sink"`
	// DeadLetters stores failed chunks in store.database_url when the sink
	// is not itself a store.
	DeadLetters bool `yaml:"dead_letters" mapstructure:"dead_letters"`
}

// PinAPIConfig holds the pin service endpoint and token.
type PinAPIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds Salesforce JWT auth configuration.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	Object    string  `yaml:"object" mapstructure:"object"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// IngestConfig configures row handling.
type IngestConfig struct {
	StrictContact bool   `yaml:"strict_contact" mapstructure:"strict_contact"`
	AliasesPath   string `yaml:"aliases_path" mapstructure:"aliases_path"`
	Country       string `yaml:"country" mapstructure:"country"`
}

// SourceConfig configures remote upload fetching.
type SourceConfig struct {
	TimeoutSecs int   `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int   `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxBytes    int64 `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// ServerConfig configures the upload server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com")
	v.SetDefault("geocode.api_key", "")
	v.SetDefault("geocode.region", "ca")
	v.SetDefault("geocode.concurrency", 10)
	v.SetDefault("geocode.rate_limit", 25)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.circuit_failure_threshold", 5)
	v.SetDefault("geocode.circuit_reset_secs", 30)
	v.SetDefault("submit.chunk_size", 50)
	v.SetDefault("submit.delay_ms", 700)
	v.SetDefault("submit.sink", SinkAPI)
	v.SetDefault("submit.dead_letters", false)
	v.SetDefault("pinapi.base_url", "")
	v.SetDefault("pinapi.token", "")
	v.SetDefault("pinapi.timeout_secs", 60)
	v.SetDefault("pinapi.rate_limit", 0)
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.object", "Pin__c")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("ingest.strict_contact", true)
	v.SetDefault("ingest.aliases_path", "")
	v.SetDefault("ingest.country", "Canada")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_attempts", 3)
	v.SetDefault("source.max_bytes", 50<<20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings every command relies on. Sink credentials are
// checked when the sink is opened.
func (c *Config) Validate() error {
	var errs []string
	switch c.Submit.Sink {
	case SinkAPI, SinkPostgres, SinkSQLite, SinkSalesforce:
	default:
		errs = append(errs, "submit.sink must be one of api, postgres, sqlite, salesforce")
	}
	if c.Submit.ChunkSize <= 0 {
		errs = append(errs, "submit.chunk_size must be positive")
	}
	if c.Submit.DelayMs < 0 {
		errs = append(errs, "submit.delay_ms must not be negative")
	}
	if c.Geocode.Concurrency <= 0 {
		errs = append(errs, "geocode.concurrency must be positive")
	}
	if c.Geocode.RateLimit < 0 {
		errs = append(errs, "geocode.rate_limit must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
