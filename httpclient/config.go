/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulsefit/aithrottle/config"
)

const cfgDefaultKeyPrefix = "httpClient"

// Default values.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultUserAgent            = "aithrottle"
	DefaultLogMode              = LoggingModeFailed
	DefaultSlowRequestThreshold = time.Second
)

const (
	cfgKeyTimeout                 = "timeout"
	cfgKeyUserAgent               = "userAgent"
	cfgKeyLogMode                 = "log.mode"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
)

// LogConfig configures logging of outgoing requests.
type LogConfig struct {
	// Mode is one of none, all, failed.
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`

	// SlowRequestThreshold makes successful requests that took longer be logged at warn level.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Config is the configuration of the HTTP client (keys under "httpClient" by default).
type Config struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UserAgent string        `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`
	Log       LogConfig     `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix overrides the "httpClient" key prefix.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config to be filled by config.Loader.
func NewConfig(options ...ConfigOption) *Config {
	c := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	c := NewConfig(options...)
	c.Timeout = DefaultTimeout
	c.UserAgent = DefaultUserAgent
	c.Log = LogConfig{Mode: DefaultLogMode, SlowRequestThreshold: DefaultSlowRequestThreshold}
	return c
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
	dp.SetDefault(cfgKeyLogMode, string(DefaultLogMode))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should not be negative"))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}

	modes := []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}
	mode, err := dp.GetStringFromSet(cfgKeyLogMode, modes, true)
	if err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(strings.ToLower(mode))

	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	return nil
}
