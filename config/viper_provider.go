/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperProvider is DataProvider implementation that uses viper library under the hood.
type ViperProvider struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperProvider)(nil)

// NewViperProvider creates a new ViperProvider.
func NewViperProvider() *ViperProvider {
	return &ViperProvider{viper.New()}
}

// UseEnvVars enables the ability to use environment variables for configuration parameters.
// Prefix defines what environment variables will be looked.
// E.g., if your prefix is "adm", the env registry will look for env
// variables that start with "ADM_".
func (vp *ViperProvider) UseEnvVars(prefix string) {
	vp.viper.AutomaticEnv()
	vp.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.viper.SetEnvPrefix(prefix)
}

// Set sets the value for the key in the override register.
func (vp *ViperProvider) Set(key string, value interface{}) {
	vp.viper.Set(key, value)
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via config or ENV.
func (vp *ViperProvider) SetDefault(key string, value interface{}) {
	vp.viper.SetDefault(key, value)
}

// SetFromFile specifies that discovering and loading configuration data will be performed from file.
func (vp *ViperProvider) SetFromFile(path string, dataType DataType) error {
	vp.viper.SetConfigType(string(dataType))
	vp.viper.SetConfigFile(path)
	return vp.viper.ReadInConfig()
}

// SetFromReader specifies that discovering and loading configuration data will be performed from reader.
func (vp *ViperProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	vp.viper.SetConfigType(string(dataType))
	return vp.viper.ReadConfig(reader)
}

// IsSet checks to see if the key has been set in any of the data locations.
// IsSet is case-insensitive for a key.
func (vp *ViperProvider) IsSet(key string) bool {
	return vp.viper.IsSet(key)
}

// Get retrieves any value given the key to use.
func (vp *ViperProvider) Get(key string) interface{} {
	return vp.viper.Get(key)
}

// GetBool tries to retrieve the value associated with the key as a bool.
func (vp *ViperProvider) GetBool(key string) (res bool, err error) {
	res, err = cast.ToBoolE(vp.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetInt tries to retrieve the value associated with the key as an integer.
func (vp *ViperProvider) GetInt(key string) (res int, err error) {
	res, err = cast.ToIntE(vp.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetString tries to retrieve the value associated with the key as a string.
func (vp *ViperProvider) GetString(key string) (res string, err error) {
	res, err = cast.ToStringE(vp.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetStringFromSet tries to retrieve the value associated with the key as a string from the specified set.
func (vp *ViperProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := vp.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if (ignoreCase && strings.EqualFold(str, s)) || str == s {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration tries to retrieve the value associated with the key as a duration.
func (vp *ViperProvider) GetDuration(key string) (res time.Duration, err error) {
	val := vp.Get(key)
	if val == nil {
		return
	}
	res, err = cast.ToDurationE(val)
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetByteSize tries to retrieve the value associated with the key as a size in bytes.
// Both integers and human-readable strings (e.g. "256M") are supported.
func (vp *ViperProvider) GetByteSize(key string) (ByteSize, error) {
	val := vp.Get(key)
	if val == nil {
		return 0, nil
	}
	switch v := val.(type) {
	case string:
		num, err := bytefmt.ToBytes(v)
		if err != nil {
			return 0, WrapKeyErr(key, fmt.Errorf("invalid bytes format: %s", v))
		}
		return ByteSize(num), nil

	case int, int8, int16, int32, int64:
		num := cast.ToInt64(val)
		if num < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
		}
		return ByteSize(num), nil

	case uint, uint8, uint16, uint32, uint64:
		return ByteSize(cast.ToUint64(val)), nil

	case ByteSize:
		return v, nil

	default:
		return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for ByteSize: %T", val))
	}
}

// Unmarshal unmarshals the config into a Struct.
func (vp *ViperProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return vp.viper.Unmarshal(rawVal, options...)
}

// UnmarshalKey takes a single key and unmarshals it into a Struct.
func (vp *ViperProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return WrapKeyErrIfNeeded(key, vp.viper.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (vp *ViperProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
