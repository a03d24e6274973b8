/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"fmt"
	"time"

	"github.com/acronis/go-admission/config"
)

const cfgDefaultKeyPrefix = "admission"

const (
	cfgKeyLimit           = "limit"
	cfgKeyCleanupInterval = "cleanupInterval"
	cfgKeyEntryTTL        = "entryTTL"
)

// Default configuration values.
const (
	DefaultLimit           = 15
	DefaultCleanupInterval = time.Minute
	DefaultEntryTTL        = time.Minute * 5
)

// Config represents a set of configuration parameters for admission control.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
// All values are read-only after the Controller is constructed.
type Config struct {
	// Limit is the maximum number of requests permitted for one client
	// within the sliding 1-second window.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// CleanupInterval is the delay between two passes of the idle reclamation loop.
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	// EntryTTL is the duration of inactivity after which a client's state is discarded.
	EntryTTL config.TimeDuration `mapstructure:"entryTTL" yaml:"entryTTL" json:"entryTTL"`

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
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:       opts.keyPrefix,
		Limit:           DefaultLimit,
		CleanupInterval: config.TimeDuration(DefaultCleanupInterval),
		EntryTTL:        config.TimeDuration(DefaultEntryTTL),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for admission control in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLimit, DefaultLimit)
	dp.SetDefault(cfgKeyCleanupInterval, DefaultCleanupInterval.String())
	dp.SetDefault(cfgKeyEntryTTL, DefaultEntryTTL.String())
}

// Set sets admission control configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Limit, err = dp.GetInt(cfgKeyLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyLimit, fmt.Errorf("must be positive, got %d", c.Limit))
	}

	var cleanupInterval time.Duration
	if cleanupInterval, err = dp.GetDuration(cfgKeyCleanupInterval); err != nil {
		return err
	}
	c.CleanupInterval = config.TimeDuration(cleanupInterval)
	if c.CleanupInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyCleanupInterval, fmt.Errorf("must be positive, got %s", c.CleanupInterval))
	}

	var entryTTL time.Duration
	if entryTTL, err = dp.GetDuration(cfgKeyEntryTTL); err != nil {
		return err
	}
	c.EntryTTL = config.TimeDuration(entryTTL)
	if c.EntryTTL <= 0 {
		return dp.WrapKeyErr(cfgKeyEntryTTL, fmt.Errorf("must be positive, got %s", c.EntryTTL))
	}

	return nil
}

// Validate checks that all configuration values are allowed.
func (c *Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", c.CleanupInterval)
	}
	if c.EntryTTL <= 0 {
		return fmt.Errorf("entry TTL must be positive, got %s", c.EntryTTL)
	}
	return nil
}
