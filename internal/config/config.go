package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/powerwallmon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval = 60
	DefaultBackoff  = 30
	DefaultLogLevel = "info"

	defaultJournalPath = "/var/lib/powerwallmon/journal.db"
)

// Config holds the complete monitor configuration, immutable after Load.
type Config struct {
	Interval  int             `mapstructure:"interval"`
	Backoff   int             `mapstructure:"backoff"`
	LogLevel  string          `mapstructure:"log_level"`
	DryRun    bool            `mapstructure:"dry_run"`
	Powerwall PowerwallConfig `mapstructure:"powerwall"`
	InfluxDB  InfluxDBConfig  `mapstructure:"influxdb"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// PowerwallConfig holds the gateway connection parameters.
type PowerwallConfig struct {
	Host     string `mapstructure:"host"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// InfluxDBConfig holds the time-series database connection parameters.
type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// JournalConfig holds the optional local cycle journal settings.
type JournalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Database string `mapstructure:"database"`
}

// Load reads configuration from file, environment and flags, in
// increasing order of precedence, and validates the result.
func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("powerwallmon", pflag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to configuration file")
	fs.Int("interval", DefaultInterval, "Seconds between poll cycles")
	fs.Int("backoff", DefaultBackoff, "Seconds to wait before retrying after a failure")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("dry-run", false, "Poll and log readings without writing to the database")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("backoff", DefaultBackoff)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("dry_run", false)
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.database", defaultJournalPath)

	v.SetEnvPrefix("POWERWALLMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("POWERWALLMON_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName("powerwallmon")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	for key, flag := range map[string]string{
		"interval":  "interval",
		"backoff":   "backoff",
		"log_level": "log-level",
		"dry_run":   "dry-run",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that all required keys are present and sane. The
// process must not start polling with an incomplete configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Backoff <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Backoff)
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	required := map[string]string{
		"powerwall.host":     c.Powerwall.Host,
		"powerwall.email":    c.Powerwall.Email,
		"powerwall.password": c.Powerwall.Password,
		"influxdb.url":       c.InfluxDB.URL,
		"influxdb.token":     c.InfluxDB.Token,
		"influxdb.org":       c.InfluxDB.Org,
		"influxdb.bucket":    c.InfluxDB.Bucket,
	}
	for key, value := range required {
		if value == "" {
			return errFactory.WithData(errors.ErrMissingConfig, key)
		}
	}

	if c.Journal.Enabled && c.Journal.Database == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "journal.database")
	}

	return nil
}
