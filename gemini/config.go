/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gemini

import (
	"fmt"
	"net/url"
	"time"

	"github.com/pulsefit/aithrottle/config"
)

const cfgDefaultKeyPrefix = "gemini"

// Default values.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
	DefaultTimeout = 30 * time.Second
)

const (
	cfgKeyBaseURL    = "baseURL"
	cfgKeyAPIKey     = "apiKey"
	cfgKeyModel      = "model"
	cfgKeyTimeout    = "timeout"
	cfgKeyUserAgent  = "userAgent"
	cfgKeyGeneration = "generation"
)

// Config is the configuration of the Gemini client (keys under "gemini" by default).
type Config struct {
	BaseURL   string        `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	APIKey    string        `mapstructure:"apiKey" yaml:"apiKey" json:"-"`
	Model     string        `mapstructure:"model" yaml:"model" json:"model"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	UserAgent string        `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`

	// Generation holds defaults for requests that do not set their own GenerationConfig.
	Generation GenerationConfig `mapstructure:"generation" yaml:"generation" json:"generation"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix overrides the "gemini" key prefix.
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

// NewDefaultConfig creates a Config with default values. APIKey is left empty.
func NewDefaultConfig(options ...ConfigOption) *Config {
	c := NewConfig(options...)
	c.BaseURL = DefaultBaseURL
	c.Model = DefaultModel
	c.Timeout = DefaultTimeout
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
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeyModel, DefaultModel)
	dp.SetDefault(cfgKeyTimeout, DefaultTimeout.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if u, parseErr := url.Parse(c.BaseURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("should be an absolute URL"))
	}
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	if c.Model, err = dp.GetString(cfgKeyModel); err != nil {
		return err
	}
	if c.Model == "" {
		return dp.WrapKeyErr(cfgKeyModel, fmt.Errorf("cannot be empty"))
	}
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should not be negative"))
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}

	c.Generation = GenerationConfig{}
	if dp.IsSet(cfgKeyGeneration) {
		if err = dp.UnmarshalKey(cfgKeyGeneration, &c.Generation); err != nil {
			return err
		}
	}
	if c.Generation.MaxOutputTokens < 0 {
		return dp.WrapKeyErr(cfgKeyGeneration+".maxOutputTokens", fmt.Errorf("should not be negative"))
	}
	return nil
}
