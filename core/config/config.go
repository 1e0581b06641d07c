// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"fmt"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

// ConfigAttributes is the map of validated config values.
type ConfigAttributes map[string]interface{}

// Get returns the value for key, or defaultValue if it is not set.
func (c ConfigAttributes) Get(key string, defaultValue interface{}) interface{} {
	if val, ok := c[key]; ok {
		return val
	}
	return defaultValue
}

// GetString returns the string value for key, or defaultValue.
func (c ConfigAttributes) GetString(key string, defaultValue string) string {
	if val, ok := c[key].(string); ok {
		return val
	}
	return defaultValue
}

// GetInt returns the int value for key, or defaultValue.
func (c ConfigAttributes) GetInt(key string, defaultValue int) int {
	switch val := c[key].(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	}
	return defaultValue
}

// GetBool returns the bool value for key, or defaultValue.
func (c ConfigAttributes) GetBool(key string, defaultValue bool) bool {
	if val, ok := c[key].(bool); ok {
		return val
	}
	return defaultValue
}

// GetDuration parses the value for key as a duration. defaultValue is
// returned if the key is not set.
func (c ConfigAttributes) GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	switch val := c[key].(type) {
	case nil:
		return defaultValue, nil
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, errors.NotValidf("%s %q", key, val)
		}
		return d, nil
	default:
		return 0, errors.NotValidf("%s value of type %T", key, val)
	}
}

// Config holds a set of attributes validated against a schema.
type Config struct {
	attributes ConfigAttributes
}

// NewConfig validates attrs against fields and returns the coerced config.
// Missing optional attributes take their value from defaults.
func NewConfig(attrs map[string]interface{}, fields environschema.Fields, defaults schema.Defaults) (*Config, error) {
	known := KnownConfigKeys(fields)
	for name, value := range attrs {
		if !known.Contains(name) {
			return nil, errors.NewNotValid(nil, fmt.Sprintf("unknown key %q (value %#v)", name, value))
		}
	}
	for _, name := range known.SortedValues() {
		if !fields[name].Mandatory {
			continue
		}
		if value, ok := attrs[name]; !ok || value == "" {
			return nil, errors.NewNotValid(nil, fmt.Sprintf("%s is required", name))
		}
	}

	checker, err := schemaChecker(fields, defaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	coerced, err := checker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.NewNotValid(err, "")
	}
	return &Config{attributes: coerced.(map[string]interface{})}, nil
}

// Attributes returns a copy of the validated attributes.
func (c *Config) Attributes() ConfigAttributes {
	if c == nil {
		return nil
	}
	result := make(ConfigAttributes, len(c.attributes))
	for k, v := range c.attributes {
		result[k] = v
	}
	return result
}

// KnownConfigKeys returns the names of all fields in the schema.
func KnownConfigKeys(fields environschema.Fields) set.Strings {
	result := set.NewStrings()
	for name := range fields {
		result.Add(name)
	}
	return result
}

func schemaChecker(fields environschema.Fields, defaults schema.Defaults) (schema.Checker, error) {
	schemaFields, schemaDefaults, err := fields.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for key, value := range defaults {
		schemaDefaults[key] = value
	}
	return schema.StrictFieldMap(schemaFields, schemaDefaults), nil
}
