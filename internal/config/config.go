package config

import (
	"os"

	"codeberg.org/mutker/encoderctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort         = "/dev/ttyUSB0"
	DefaultBaudRate     = 115200
	DefaultReadTimeout  = 100  // milliseconds
	DefaultRetryBackoff = 500  // milliseconds
	DefaultRefresh      = 100  // milliseconds
	DefaultListen       = ":8085"
	DefaultPlotPoints   = 4000
	DefaultExportRows   = 100000
	DefaultLogLevel     = "info"
	DefaultZeroCommand  = "zero"
	DefaultGrammar      = "encoder"
	defaultDatabase     = "/var/lib/encoderctl/sessions.db"
)

// Config holds the full daemon configuration, merged from the TOML
// config file, environment and command line flags (flags win).
type Config struct {
	Port         string `mapstructure:"port"`
	Baud         int    `mapstructure:"baud"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	RetryBackoff int    `mapstructure:"retry_backoff"` // milliseconds
	Listen       string `mapstructure:"listen"`
	Refresh      int    `mapstructure:"refresh"` // milliseconds
	PlotPoints   int    `mapstructure:"plot_points"`
	ExportRows   int    `mapstructure:"export_rows"`
	Grammar      string `mapstructure:"grammar"`
	Recorder     bool   `mapstructure:"recorder"`
	Database     string `mapstructure:"database"`
	LogLevel     string `mapstructure:"log_level"`
	ZeroCommand  string `mapstructure:"zero_command"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("baud", DefaultBaudRate)
	v.SetDefault("read_timeout", DefaultReadTimeout)
	v.SetDefault("retry_backoff", DefaultRetryBackoff)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("refresh", DefaultRefresh)
	v.SetDefault("plot_points", DefaultPlotPoints)
	v.SetDefault("export_rows", DefaultExportRows)
	v.SetDefault("grammar", DefaultGrammar)
	v.SetDefault("recorder", false)
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("zero_command", DefaultZeroCommand)

	fs := pflag.NewFlagSet("encoderctl", pflag.ContinueOnError)
	fs.String("port", DefaultPort, "Serial port of the encoder device")
	fs.Int("baud", DefaultBaudRate, "Serial baud rate")
	fs.String("listen", DefaultListen, "Dashboard listen address")
	fs.Bool("recorder", false, "Record sessions to the sqlite database")
	fs.String("database", defaultDatabase, "Path to the session database")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	if err := fs.Parse(os.Args[1:]); err != nil && err != pflag.ErrHelp {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"port":      "port",
		"baud":      "baud",
		"listen":    "listen",
		"recorder":  "recorder",
		"database":  "database",
		"log_level": "log-level",
	}
	for key, name := range bindings {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	if path := os.Getenv("ENCODERCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("encoderctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Port == "" {
		return errFactory.New(errors.ErrInvalidPort)
	}
	if c.Baud <= 0 {
		return errFactory.WithData(errors.ErrInvalidBaudRate, c.Baud)
	}
	if c.ReadTimeout <= 0 || c.RetryBackoff <= 0 || c.Refresh <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}
	switch c.Grammar {
	case "encoder", "raw":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "grammar must be \"encoder\" or \"raw\"")
	}
	if c.PlotPoints <= 0 || c.ExportRows <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "plot_points and export_rows must be positive")
	}
	if c.Recorder && c.Database == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "recorder enabled without a database path")
	}

	return nil
}
