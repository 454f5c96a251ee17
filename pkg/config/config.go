package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/power-warden/powa/internal/lock"
	"github.com/power-warden/powa/internal/power"
)

var valid = validator.New()

const (
	// DefaultPollingInterval applies to domains absent from the file.
	DefaultPollingInterval = 30.0
	DefaultReadTimeout     = 2 * time.Second
	DefaultLockFile        = lock.DefaultPath
	DefaultGracePeriod     = 5 * time.Second
	DefaultI2CBus          = 1

	EnvPrefix = "POWA"
)

// defaultAddresses are the INA260 addresses strapped per domain on the board.
var defaultAddresses = map[power.Domain]int{
	power.VBAT: 0x40,
	power.USB:  0x41,
}

// Config is the whole daemon configuration.
type Config struct {
	Server       ServerConfig            `yaml:"server" mapstructure:"server"`
	Daemon       DaemonConfig            `yaml:"daemon" mapstructure:"daemon"`
	PowerDomains map[string]DomainConfig `yaml:"power_domain" mapstructure:"power_domain" validate:"dive"`
	Log          ZapLogConfig            `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP exporter.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DaemonConfig configures process lifecycle.
type DaemonConfig struct {
	LockFile    string        `yaml:"lock_file" mapstructure:"lock_file" validate:"required"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gt=0"`
}

// DomainConfig configures the sampling of one power domain. Unset fields are
// filled from the defaults by Config.Domain. An explicit polling_interval
// must be positive.
type DomainConfig struct {
	PollingInterval *float64      `yaml:"polling_interval" mapstructure:"polling_interval" validate:"omitempty,gt=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	Sensor          SensorConfig  `yaml:"sensor" mapstructure:"sensor"`
}

// SensorConfig selects and addresses the sensor of a domain.
type SensorConfig struct {
	Driver    string          `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=ina260 simulated"`
	Bus       *int            `yaml:"bus" mapstructure:"bus" validate:"omitempty,gte=0"`
	Address   int             `yaml:"address" mapstructure:"address" validate:"gte=0,lte=127"`
	Averaging int             `yaml:"averaging" mapstructure:"averaging" validate:"gte=0"`
	Simulated SimulatedValues `yaml:"simulated" mapstructure:"simulated"`
}

// SimulatedValues are returned by the simulated driver.
type SimulatedValues struct {
	Voltage float64 `yaml:"voltage" mapstructure:"voltage"`
	Current float64 `yaml:"current" mapstructure:"current"`
	Power   float64 `yaml:"power" mapstructure:"power"`
}

// ZapLogConfig configures logging.
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn warning error"`
	Format    string `yaml:"format" mapstructure:"format" validate:"required,oneof=json console"`
	Path      string `yaml:"path" mapstructure:"path"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" validate:"gte=0"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" validate:"gte=0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
}

// NewDefaultConfig returns a configuration where every field has its default.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "localhost:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Daemon: DaemonConfig{
			LockFile:    DefaultLockFile,
			GracePeriod: DefaultGracePeriod,
		},
		PowerDomains: map[string]DomainConfig{},
		Log: ZapLogConfig{
			Level:   "info",
			Format:  "console",
			MaxSize: 100,
			MaxAge:  7,
		},
	}
}

// Domain resolves the configuration of d: the explicit entry when present
// (matched case-insensitively, viper lowercases keys) with zero fields
// defaulted, otherwise the defaults.
func (c *Config) Domain(d power.Domain) DomainConfig {
	var dc DomainConfig
	for name, entry := range c.PowerDomains {
		if strings.EqualFold(name, string(d)) {
			dc = entry
			break
		}
	}

	if dc.PollingInterval == nil {
		interval := DefaultPollingInterval
		dc.PollingInterval = &interval
	}
	if dc.ReadTimeout <= 0 {
		dc.ReadTimeout = DefaultReadTimeout
	}
	if dc.Sensor.Driver == "" {
		dc.Sensor.Driver = "ina260"
	}
	if dc.Sensor.Bus == nil {
		bus := DefaultI2CBus
		dc.Sensor.Bus = &bus
	}
	if dc.Sensor.Address == 0 {
		dc.Sensor.Address = defaultAddresses[d]
	}
	return dc
}

// Interval returns the polling interval as a duration, the default when
// unset.
func (d DomainConfig) Interval() time.Duration {
	seconds := DefaultPollingInterval
	if d.PollingInterval != nil {
		seconds = *d.PollingInterval
	}
	return time.Duration(seconds * float64(time.Second))
}

// Load reads path (YAML) on top of the defaults, then environment variables
// prefixed with POWA_.
func Load(path string) (*Config, error) {
	v := viper.New()
	return load(v, path)
}

// LoadConfigWithCli layers defaults, the file named by --config, POWA_*
// environment variables and explicitly set command flags, in increasing
// precedence. --log-level overrides log.level.
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := load(v, configFile)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Log.Level = strings.ToLower(f.Value.String())
		if err := cfg.Log.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}

func load(v *viper.Viper, path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks tags first, then each section.
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Daemon.Validate(); err != nil {
		return err
	}
	if err := c.validateDomains(); err != nil {
		return err
	}
	return c.Log.Validate()
}
