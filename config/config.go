/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration objects from YAML/JSON files and environment variables.
// Every component of the module exposes its own Config type which knows its key prefix,
// its defaults and how to read itself from a DataProvider.
package config

import "reflect"

// Config is implemented by every configuration object that Loader can fill.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects that live under a key prefix (e.g. "limiter").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// ProviderFor returns the data provider scoped to the key prefix of cfg (if it has one).
func ProviderFor(dp DataProvider, cfg interface{}) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every non-nil exported field of obj
// that implements Config. obj must be a pointer to a struct.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	_ = forEachConfigField(obj, func(c Config) error {
		c.SetProviderDefaults(ProviderFor(dp, c))
		return nil
	})
}

// CallSetForFields calls Set for every non-nil exported field of obj that implements Config.
// It stops on the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, func(c Config) error {
		return c.Set(ProviderFor(dp, c))
	})
}

func forEachConfigField(obj interface{}, fn func(c Config) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		fv := el.Field(i)
		if fv.Kind() == reflect.Ptr && fv.IsNil() {
			continue
		}
		c, ok := fv.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}
