// Package config turns viper settings into the typed configurations of the
// reconciler packages.
package config

import (
	"fmt"
	"strings"
	"time"

	"golang-bank-reconciliation/internal/history"
	"golang-bank-reconciliation/internal/matcher"
	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/internal/reconciler"
	"golang-bank-reconciliation/internal/reporter"
	"golang-bank-reconciliation/internal/resilience"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RECONCILER_TENANT_ID.
const EnvPrefix = "RECONCILER"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Settings mirrors the configuration keys.
type Settings struct {
	Tenant struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"tenant"`

	User struct {
		ID   string `mapstructure:"id"`
		Role string `mapstructure:"role"`
	} `mapstructure:"user"`

	Store struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"store"`

	Files struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"files"`

	Matching struct {
		DateToleranceDays int    `mapstructure:"date_tolerance_days"`
		AmountEpsilon     string `mapstructure:"amount_epsilon"`
	} `mapstructure:"matching"`

	History struct {
		PageSize int           `mapstructure:"page_size"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"history"`

	Resilience struct {
		MaxRetries     int           `mapstructure:"max_retries"`
		InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	} `mapstructure:"resilience"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		Output string `mapstructure:"output"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	Metrics struct {
		File string `mapstructure:"file"`
	} `mapstructure:"metrics"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
}

// SetDefaults registers the default value of every key and wires the
// environment. Keys map to variables by upper-casing and replacing dots,
// so store.driver is read from RECONCILER_STORE_DRIVER.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("tenant.id", "")
	v.SetDefault("user.id", "")
	v.SetDefault("user.role", "admin")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "reconciler.db")
	v.SetDefault("files.root", "./originals")
	v.SetDefault("matching.date_tolerance_days", 3)
	v.SetDefault("matching.amount_epsilon", "0.01")
	v.SetDefault("history.page_size", 10)
	v.SetDefault("history.cache_ttl", 10*time.Minute)
	v.SetDefault("resilience.max_retries", 2)
	v.SetDefault("resilience.initial_backoff", 100*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.file", "")
	v.SetDefault("server.addr", ":8080")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "settings", nil, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings that are not validated by the typed
// configurations themselves.
func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(s.Store.Path) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "store.path", s.Store.Path, nil).
				WithSuggestion("set --store-path or RECONCILER_STORE_PATH")
		}
	case DriverMemory:
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "store.driver", s.Store.Driver, nil).
			WithSuggestion("use sqlite or memory")
	}
	if s.History.PageSize <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "history.page_size", s.History.PageSize, nil)
	}
	if s.Resilience.MaxRetries < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "resilience.max_retries", s.Resilience.MaxRetries, nil)
	}
	if _, err := s.MatchingConfig(); err != nil {
		return err
	}
	if err := s.LoggerConfig().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", s.Log, err)
	}
	return nil
}

// Actor returns the configured identity. Tenant and user may be empty;
// operations that need them reject the call.
func (s *Settings) Actor() models.Actor {
	return models.Actor{
		TenantID: strings.TrimSpace(s.Tenant.ID),
		ID:       strings.TrimSpace(s.User.ID),
		Role:     s.User.Role,
	}
}

// MatchingConfig builds the auto-match tolerances.
func (s *Settings) MatchingConfig() (*matcher.Config, error) {
	config := matcher.DefaultConfig()
	config.DateToleranceDays = s.Matching.DateToleranceDays

	if raw := strings.TrimSpace(s.Matching.AmountEpsilon); raw != "" {
		epsilon, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.amount_epsilon", raw, err)
		}
		config.AmountEpsilon = epsilon
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", s.Matching, err)
	}
	return config, nil
}

// ReconcilerConfig builds the workspace configuration.
func (s *Settings) ReconcilerConfig() (*reconciler.Config, error) {
	matching, err := s.MatchingConfig()
	if err != nil {
		return nil, err
	}
	config := reconciler.DefaultConfig()
	config.Matching = matching
	return config, nil
}

// HistoryConfig builds the history index configuration.
func (s *Settings) HistoryConfig() *history.Config {
	config := history.DefaultConfig()
	config.PageSize = s.History.PageSize
	if s.History.CacheTTL > 0 {
		config.CacheExpiration = s.History.CacheTTL
		config.CleanupInterval = 2 * s.History.CacheTTL
	}
	return config
}

// ResilienceConfig builds the session store retry policy.
func (s *Settings) ResilienceConfig() resilience.Config {
	config := resilience.DefaultConfig()
	config.MaxRetries = s.Resilience.MaxRetries
	if s.Resilience.InitialBackoff > 0 {
		config.InitialBackoff = s.Resilience.InitialBackoff
	}
	return config
}

// LoggerConfig builds the logger configuration.
func (s *Settings) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:  logger.Level(strings.ToLower(s.Log.Level)),
		Format: logger.Format(strings.ToLower(s.Log.Format)),
		Output: logger.Output(strings.ToLower(s.Log.Output)),
		File:   s.Log.File,
	}
}

// CreateReportConfig creates a report configuration for the named output
// format.
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	f, err := reporter.ParseFormat(format)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidValue, "output-format", format, err).
			WithSuggestion("use console, json or csv")
	}

	config := reporter.ConfigForFormat(f)
	switch f {
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	case reporter.FormatJSON:
		config.IncludeDuplicateWarning = true
	}
	return config, nil
}

// ParsePeriod validates a --from/--to pair.
func ParsePeriod(from, to string) (models.DateRange, error) {
	period := models.DateRange{From: strings.TrimSpace(from), To: strings.TrimSpace(to)}
	if err := period.Validate(); err != nil {
		return models.DateRange{}, errors.ValidationError(errors.CodeInvalidRange, "period", fmt.Sprintf("%s..%s", from, to), err).
			WithSuggestion("dates use YYYY-MM-DD and --from must not be after --to")
	}
	return period, nil
}
