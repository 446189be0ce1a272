/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package statsstore

import (
	"fmt"
	"time"

	"github.com/pulsefit/aithrottle/config"
)

const cfgDefaultKeyPrefix = "redis"

const (
	cfgKeyEnabled   = "enabled"
	cfgKeyAddress   = "address"
	cfgKeyPassword  = "password"
	cfgKeyDB        = "db"
	cfgKeyKeyPrefix = "keyPrefix"
	cfgKeyInterval  = "interval"
)

// Default values.
const (
	DefaultAddress   = "localhost:6379"
	DefaultKeyPrefix = "aithrottle"
	DefaultInterval  = 10 * time.Second
)

// Config is the configuration of the Redis snapshot publisher (keys under "redis" by default).
type Config struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address        string        `mapstructure:"address" yaml:"address" json:"address"`
	Password       string        `mapstructure:"password" yaml:"password" json:"-"`
	DB             int           `mapstructure:"db" yaml:"db" json:"db"`
	StoreKeyPrefix string        `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix overrides the "redis" key prefix of the configuration.
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

// NewDefaultConfig creates a Config with default values. Publishing is disabled.
func NewDefaultConfig(options ...ConfigOption) *Config {
	c := NewConfig(options...)
	c.Address = DefaultAddress
	c.StoreKeyPrefix = DefaultKeyPrefix
	c.Interval = DefaultInterval
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
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
	dp.SetDefault(cfgKeyDB, 0)
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyInterval, DefaultInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, fmt.Errorf("cannot be empty"))
	}
	if c.Password, err = dp.GetString(cfgKeyPassword); err != nil {
		return err
	}
	if c.DB, err = dp.GetInt(cfgKeyDB); err != nil {
		return err
	}
	if c.DB < 0 {
		return dp.WrapKeyErr(cfgKeyDB, fmt.Errorf("should not be negative"))
	}
	if c.StoreKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}
	if c.StoreKeyPrefix == "" {
		return dp.WrapKeyErr(cfgKeyKeyPrefix, fmt.Errorf("cannot be empty"))
	}
	if c.Interval, err = dp.GetDuration(cfgKeyInterval); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return dp.WrapKeyErr(cfgKeyInterval, fmt.Errorf("should be positive"))
	}
	return nil
}
