/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/pulsefit/aithrottle/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress            = "address"
	cfgKeyTimeoutWrite       = "timeouts.write"
	cfgKeyTimeoutRead        = "timeouts.read"
	cfgKeyTimeoutReadHeader  = "timeouts.readHeader"
	cfgKeyTimeoutIdle        = "timeouts.idle"
	cfgKeyTimeoutShutdown    = "timeouts.shutdown"
	cfgKeyLogExcluded        = "log.excludedEndpoints"
	cfgKeyLogSlowRequestTime = "log.slowRequestThreshold"
)

// DefaultAddress is the address the status server listens on when none is configured.
const DefaultAddress = ":8080"

var defaultTimeouts = map[string]time.Duration{
	cfgKeyTimeoutWrite:      time.Minute,
	cfgKeyTimeoutRead:       15 * time.Second,
	cfgKeyTimeoutReadHeader: 10 * time.Second,
	cfgKeyTimeoutIdle:       time.Minute,
	cfgKeyTimeoutShutdown:   5 * time.Second,
}

const defaultSlowRequestThreshold = time.Second

var defaultExcludedEndpoints = []string{"/healthz", "/metrics"}

// Config is the configuration of the limiter status HTTP server.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

func makeConfigOptions(options []ConfigOption) configOptions {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	return &Config{keyPrefix: makeConfigOptions(options).keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = DefaultAddress
	for key, dst := range cfg.Timeouts.fields() {
		*dst = config.TimeDuration(defaultTimeouts[key])
	}
	cfg.Log = LogConfig{
		ExcludedEndpoints:    append([]string(nil), defaultExcludedEndpoints...),
		SlowRequestThreshold: config.TimeDuration(defaultSlowRequestThreshold),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the status server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	for key, dur := range defaultTimeouts {
		dp.SetDefault(key, dur.String())
	}
	dp.SetDefault(cfgKeyLogExcluded, append([]string(nil), defaultExcludedEndpoints...))
	dp.SetDefault(cfgKeyLogSlowRequestTime, defaultSlowRequestThreshold.String())
}

// Set sets the status server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}
	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	return c.Log.Set(dp)
}

// TimeoutsConfig holds the timeouts of the status server.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

func (t *TimeoutsConfig) fields() map[string]*config.TimeDuration {
	return map[string]*config.TimeDuration{
		cfgKeyTimeoutWrite:      &t.Write,
		cfgKeyTimeoutRead:       &t.Read,
		cfgKeyTimeoutReadHeader: &t.ReadHeader,
		cfgKeyTimeoutIdle:       &t.Idle,
		cfgKeyTimeoutShutdown:   &t.Shutdown,
	}
}

// Set sets timeouts from config.DataProvider. Zero disables a timeout, negative values are rejected.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for key, dst := range t.fields() {
		dur, err := dp.GetDuration(key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(key, fmt.Errorf("should not be negative"))
		}
		*dst = config.TimeDuration(dur)
	}
	return nil
}

// LogConfig configures request logging of the status server.
type LogConfig struct {
	ExcludedEndpoints    []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set sets logging values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyLogExcluded); err != nil {
		return err
	}
	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyLogSlowRequestTime); err != nil {
		return err
	}
	l.SlowRequestThreshold = config.TimeDuration(dur)
	return nil
}
