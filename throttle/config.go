/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"time"

	"github.com/pulsefit/aithrottle/config"
)

const cfgDefaultKeyPrefix = "limiter"

const (
	cfgKeyRequestsPerMinute    = "requestsPerMinute"
	cfgKeyRequestsPerDay       = "requestsPerDay"
	cfgKeyTokensPerMinute      = "tokensPerMinute"
	cfgKeyDefaultCost          = "defaultCost"
	cfgKeyMaxConsecutiveErrors = "maxConsecutiveErrors"
	cfgKeyStreakResetAfter     = "streakResetAfter"
	cfgKeyDrainInterval        = "drainInterval"
	cfgKeyBackoffInitial       = "backoff.initial"
	cfgKeyBackoffMax           = "backoff.max"
	cfgKeyBackoffMaxJitter     = "backoff.maxJitter"
	cfgKeyBackoffMaxMultiplier = "backoff.maxMultiplier"
	cfgKeyBackoffCooldown      = "backoff.cooldown"
	cfgKeyQueueMaxSize         = "queue.maxSize"
	cfgKeyQueueMaxWait         = "queue.maxWait"
	cfgKeyStatsLogInterval     = "statsLogInterval"
)

// Default values.
const (
	DefaultRequestsPerMinute    = 60
	DefaultRequestsPerDay       = 180
	DefaultTokensPerMinute      = 60000
	DefaultCost                 = 1000
	DefaultMaxConsecutiveErrors = 5
	DefaultStreakResetAfter     = 5 * time.Minute
	DefaultDrainInterval        = 100 * time.Millisecond
	DefaultBackoffInitial       = time.Second
	DefaultBackoffMax           = time.Minute
	DefaultBackoffMaxJitter     = time.Second
	DefaultBackoffMaxMultiplier = 10
	DefaultBackoffCooldown      = 5 * time.Minute
	DefaultStatsLogInterval     = time.Minute
)

// Config is the configuration of Limiter (keys under "limiter" by default).
type Config struct {
	RequestsPerMinute    int           `mapstructure:"requestsPerMinute" yaml:"requestsPerMinute" json:"requestsPerMinute"`
	RequestsPerDay       int           `mapstructure:"requestsPerDay" yaml:"requestsPerDay" json:"requestsPerDay"`
	TokensPerMinute      int           `mapstructure:"tokensPerMinute" yaml:"tokensPerMinute" json:"tokensPerMinute"`
	DefaultCost          int           `mapstructure:"defaultCost" yaml:"defaultCost" json:"defaultCost"`
	MaxConsecutiveErrors int           `mapstructure:"maxConsecutiveErrors" yaml:"maxConsecutiveErrors" json:"maxConsecutiveErrors"`
	StreakResetAfter     time.Duration `mapstructure:"streakResetAfter" yaml:"streakResetAfter" json:"streakResetAfter"`

	// DrainInterval is the minimal pause between the end of a drained request and the start of the next one.
	DrainInterval time.Duration `mapstructure:"drainInterval" yaml:"drainInterval" json:"drainInterval"`

	Backoff BackoffConfig `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
	Queue   QueueConfig   `mapstructure:"queue" yaml:"queue" json:"queue"`

	// StatsLogInterval is how often the serving process logs a snapshot of the limiter.
	StatsLogInterval time.Duration `mapstructure:"statsLogInterval" yaml:"statsLogInterval" json:"statsLogInterval"`

	keyPrefix string
}

// BackoffConfig configures the backoff entered on rate limit signals and on error streaks.
type BackoffConfig struct {
	Initial       time.Duration `mapstructure:"initial" yaml:"initial" json:"initial"`
	Max           time.Duration `mapstructure:"max" yaml:"max" json:"max"`
	MaxJitter     time.Duration `mapstructure:"maxJitter" yaml:"maxJitter" json:"maxJitter"`
	MaxMultiplier float64       `mapstructure:"maxMultiplier" yaml:"maxMultiplier" json:"maxMultiplier"`

	// Cooldown is the quiet period (no rate limit signals) after which the multiplier returns to 1.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown" json:"cooldown"`
}

// QueueConfig bounds the queue. Zero values mean "unbounded".
type QueueConfig struct {
	MaxSize int           `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxWait time.Duration `mapstructure:"maxWait" yaml:"maxWait" json:"maxWait"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix overrides the "limiter" key prefix.
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
	c.RequestsPerMinute = DefaultRequestsPerMinute
	c.RequestsPerDay = DefaultRequestsPerDay
	c.TokensPerMinute = DefaultTokensPerMinute
	c.DefaultCost = DefaultCost
	c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	c.StreakResetAfter = DefaultStreakResetAfter
	c.DrainInterval = DefaultDrainInterval
	c.Backoff = BackoffConfig{
		Initial:       DefaultBackoffInitial,
		Max:           DefaultBackoffMax,
		MaxJitter:     DefaultBackoffMaxJitter,
		MaxMultiplier: DefaultBackoffMaxMultiplier,
		Cooldown:      DefaultBackoffCooldown,
	}
	c.StatsLogInterval = DefaultStatsLogInterval
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
	dp.SetDefault(cfgKeyRequestsPerMinute, DefaultRequestsPerMinute)
	dp.SetDefault(cfgKeyRequestsPerDay, DefaultRequestsPerDay)
	dp.SetDefault(cfgKeyTokensPerMinute, DefaultTokensPerMinute)
	dp.SetDefault(cfgKeyDefaultCost, DefaultCost)
	dp.SetDefault(cfgKeyMaxConsecutiveErrors, DefaultMaxConsecutiveErrors)
	dp.SetDefault(cfgKeyStreakResetAfter, DefaultStreakResetAfter.String())
	dp.SetDefault(cfgKeyDrainInterval, DefaultDrainInterval.String())
	dp.SetDefault(cfgKeyBackoffInitial, DefaultBackoffInitial.String())
	dp.SetDefault(cfgKeyBackoffMax, DefaultBackoffMax.String())
	dp.SetDefault(cfgKeyBackoffMaxJitter, DefaultBackoffMaxJitter.String())
	dp.SetDefault(cfgKeyBackoffMaxMultiplier, DefaultBackoffMaxMultiplier)
	dp.SetDefault(cfgKeyBackoffCooldown, DefaultBackoffCooldown.String())
	dp.SetDefault(cfgKeyStatsLogInterval, DefaultStatsLogInterval.String())
}

// Set implements config.Config.
func (c *Config) Set(dp config.DataProvider) error {
	ints := []struct {
		key string
		dst *int
		min int
	}{
		{cfgKeyRequestsPerMinute, &c.RequestsPerMinute, 1},
		{cfgKeyRequestsPerDay, &c.RequestsPerDay, 1},
		{cfgKeyTokensPerMinute, &c.TokensPerMinute, 1},
		{cfgKeyDefaultCost, &c.DefaultCost, 0},
		{cfgKeyMaxConsecutiveErrors, &c.MaxConsecutiveErrors, 1},
		{cfgKeyQueueMaxSize, &c.Queue.MaxSize, 0},
	}
	for _, it := range ints {
		v, err := dp.GetInt(it.key)
		if err != nil {
			return err
		}
		if v < it.min {
			return dp.WrapKeyErr(it.key, fmt.Errorf("should be >= %d", it.min))
		}
		*it.dst = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{cfgKeyStreakResetAfter, &c.StreakResetAfter},
		{cfgKeyDrainInterval, &c.DrainInterval},
		{cfgKeyBackoffInitial, &c.Backoff.Initial},
		{cfgKeyBackoffMax, &c.Backoff.Max},
		{cfgKeyBackoffMaxJitter, &c.Backoff.MaxJitter},
		{cfgKeyBackoffCooldown, &c.Backoff.Cooldown},
		{cfgKeyQueueMaxWait, &c.Queue.MaxWait},
		{cfgKeyStatsLogInterval, &c.StatsLogInterval},
	}
	for _, it := range durations {
		v, err := dp.GetDuration(it.key)
		if err != nil {
			return err
		}
		if v < 0 {
			return dp.WrapKeyErr(it.key, fmt.Errorf("should not be negative"))
		}
		*it.dst = v
	}

	mult, err := dp.GetInt(cfgKeyBackoffMaxMultiplier)
	if err != nil {
		return err
	}
	if mult < 1 {
		return dp.WrapKeyErr(cfgKeyBackoffMaxMultiplier, fmt.Errorf("should be >= 1"))
	}
	c.Backoff.MaxMultiplier = float64(mult)

	if c.DefaultCost > c.TokensPerMinute {
		return dp.WrapKeyErr(cfgKeyDefaultCost, fmt.Errorf("should not exceed %s (%d)", cfgKeyTokensPerMinute, c.TokensPerMinute))
	}
	if c.Backoff.Max > 0 && c.Backoff.Initial > c.Backoff.Max {
		return dp.WrapKeyErr(cfgKeyBackoffInitial, fmt.Errorf("should not exceed backoff.max (%s)", c.Backoff.Max))
	}
	return nil
}

// Validate checks a Config built in code (without config.Loader).
func (c *Config) Validate() error {
	switch {
	case c.RequestsPerMinute < 1:
		return fmt.Errorf("%s should be >= 1", cfgKeyRequestsPerMinute)
	case c.RequestsPerDay < 1:
		return fmt.Errorf("%s should be >= 1", cfgKeyRequestsPerDay)
	case c.TokensPerMinute < 1:
		return fmt.Errorf("%s should be >= 1", cfgKeyTokensPerMinute)
	case c.DefaultCost < 0 || c.DefaultCost > c.TokensPerMinute:
		return fmt.Errorf("%s should be in [0, %d]", cfgKeyDefaultCost, c.TokensPerMinute)
	case c.MaxConsecutiveErrors < 1:
		return fmt.Errorf("%s should be >= 1", cfgKeyMaxConsecutiveErrors)
	case c.DrainInterval < 0 || c.StreakResetAfter < 0 || c.Queue.MaxWait < 0 || c.Queue.MaxSize < 0:
		return fmt.Errorf("durations and sizes should not be negative")
	case c.Backoff.Initial <= 0:
		return fmt.Errorf("%s should be positive", cfgKeyBackoffInitial)
	}
	return nil
}
