// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package upgradeconfig defines the settings of a supervised service
// upgrade and how they are read from a YAML file, the environment and the
// command line.
package upgradeconfig

import (
	"net/url"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
	"gopkg.in/yaml.v3"

	"github.com/juju/service-upgrader/core/config"
	"github.com/juju/service-upgrader/core/service"
)

const (
	RancherURLKey          = "rancher-url"
	AccessKeyKey           = "access-key"
	SecretKeyKey           = "secret-key"
	EnvironmentKey         = "environment"
	StackKey               = "stack"
	ServiceKey             = "service"
	UpgradeTimeoutKey      = "upgrade-timeout"
	StatusCheckIntervalKey = "status-check-interval"
	RollbackOnFailKey      = "rollback-on-fail"
	BatchSizeKey           = "batch-size"
	BatchIntervalKey       = "batch-interval"
	StartFirstKey          = "start-first"
	StatusReadAttemptsKey  = "status-read-attempts"
	SkipTLSVerifyKey       = "skip-tls-verify"
	PushgatewayURLKey      = "pushgateway-url"
)

const (
	// DefaultUpgradeTimeout is the total time budget of the polling loop.
	DefaultUpgradeTimeout = 10 * time.Minute

	// DefaultStatusCheckInterval is the wait before each status read.
	DefaultStatusCheckInterval = 5 * time.Second

	// DefaultBatchSize is the number of containers replaced per batch.
	DefaultBatchSize = 1

	// DefaultBatchInterval is the delay between batches.
	DefaultBatchInterval = 2 * time.Second
)

// Environment variables consulted for the connection settings when they
// are not given on the command line.
const (
	EnvRancherURL       = "RANCHER_URL"
	EnvRancherAccessKey = "RANCHER_ACCESS_KEY"
	EnvRancherSecretKey = "RANCHER_SECRET_KEY"
)

var configSchema = environschema.Fields{
	RancherURLKey: {
		Description: "The Rancher API endpoint, e.g. http://rancher:8080/v1.",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	AccessKeyKey: {
		Description: "The API access key.",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	SecretKeyKey: {
		Description: "The API secret key.",
		Type:        environschema.Tstring,
		Mandatory:   true,
		Secret:      true,
	},
	EnvironmentKey: {
		Description: "The environment (project) containing the stack.",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	StackKey: {
		Description: "The stack containing the service.",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	ServiceKey: {
		Description: "The service to upgrade.",
		Type:        environschema.Tstring,
		Mandatory:   true,
	},
	UpgradeTimeoutKey: {
		Description: "How long to wait for the upgrade to become healthy.",
		Type:        environschema.Tstring,
	},
	StatusCheckIntervalKey: {
		Description: "How long to wait between status checks.",
		Type:        environschema.Tstring,
	},
	RollbackOnFailKey: {
		Description: "Roll the service back if the upgrade times out.",
		Type:        environschema.Tbool,
	},
	BatchSizeKey: {
		Description: "Number of containers to upgrade at once.",
		Type:        environschema.Tint,
	},
	BatchIntervalKey: {
		Description: "Delay between upgrade batches.",
		Type:        environschema.Tstring,
	},
	StartFirstKey: {
		Description: "Start new containers before stopping the old ones.",
		Type:        environschema.Tbool,
	},
	StatusReadAttemptsKey: {
		Description: "Attempts made for each status read before giving up.",
		Type:        environschema.Tint,
	},
	SkipTLSVerifyKey: {
		Description: "Do not verify the API server's TLS certificate.",
		Type:        environschema.Tbool,
	},
	PushgatewayURLKey: {
		Description: "Prometheus pushgateway to push upgrade metrics to.",
		Type:        environschema.Tstring,
	},
}

var configDefaults = schema.Defaults{
	UpgradeTimeoutKey:      DefaultUpgradeTimeout.String(),
	StatusCheckIntervalKey: DefaultStatusCheckInterval.String(),
	RollbackOnFailKey:      false,
	BatchSizeKey:           DefaultBatchSize,
	BatchIntervalKey:       DefaultBatchInterval.String(),
	StartFirstKey:          false,
	StatusReadAttemptsKey:  1,
	SkipTLSVerifyKey:       false,
	PushgatewayURLKey:      "",
}

// Schema returns the fields understood by the upgrader.
func Schema() environschema.Fields {
	return configSchema
}

// Config is the validated upgrader configuration.
type Config struct {
	RancherURL  string
	AccessKey   string
	SecretKey   string
	Environment string
	Stack       string
	Service     string

	UpgradeTimeout      time.Duration
	StatusCheckInterval time.Duration
	RollbackOnFail      bool
	StatusReadAttempts  int

	// Strategy is the rollout policy. Its LaunchConfig is filled in from
	// the service when the upgrade is issued.
	Strategy service.Strategy

	SkipTLSVerify  bool
	PushgatewayURL string
}

// New validates attrs and returns the typed configuration. Every failure
// satisfies errors.NotValid.
func New(attrs map[string]interface{}) (*Config, error) {
	cfg, err := config.NewConfig(attrs, configSchema, configDefaults)
	if err != nil {
		return nil, errors.Trace(err)
	}
	a := cfg.Attributes()

	result := &Config{
		RancherURL:         a.GetString(RancherURLKey, ""),
		AccessKey:          a.GetString(AccessKeyKey, ""),
		SecretKey:          a.GetString(SecretKeyKey, ""),
		Environment:        a.GetString(EnvironmentKey, ""),
		Stack:              a.GetString(StackKey, ""),
		Service:            a.GetString(ServiceKey, ""),
		RollbackOnFail:     a.GetBool(RollbackOnFailKey, false),
		StatusReadAttempts: a.GetInt(StatusReadAttemptsKey, 1),
		SkipTLSVerify:      a.GetBool(SkipTLSVerifyKey, false),
		PushgatewayURL:     a.GetString(PushgatewayURLKey, ""),
		Strategy: service.Strategy{
			BatchSize:  a.GetInt(BatchSizeKey, DefaultBatchSize),
			StartFirst: a.GetBool(StartFirstKey, false),
		},
	}
	if result.UpgradeTimeout, err = a.GetDuration(UpgradeTimeoutKey, DefaultUpgradeTimeout); err != nil {
		return nil, errors.Trace(err)
	}
	if result.StatusCheckInterval, err = a.GetDuration(StatusCheckIntervalKey, DefaultStatusCheckInterval); err != nil {
		return nil, errors.Trace(err)
	}
	if result.Strategy.Interval, err = a.GetDuration(BatchIntervalKey, DefaultBatchInterval); err != nil {
		return nil, errors.Trace(err)
	}
	if err := result.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return result, nil
}

// Validate checks the values that the schema cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RancherURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.NotValidf("%s %q", RancherURLKey, c.RancherURL)
	}
	if c.UpgradeTimeout <= 0 {
		return errors.NotValidf("%s %v", UpgradeTimeoutKey, c.UpgradeTimeout)
	}
	if c.StatusCheckInterval <= 0 {
		return errors.NotValidf("%s %v", StatusCheckIntervalKey, c.StatusCheckInterval)
	}
	if c.StatusReadAttempts < 1 {
		return errors.NotValidf("%s %d", StatusReadAttemptsKey, c.StatusReadAttempts)
	}
	if err := c.Strategy.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.PushgatewayURL != "" {
		if _, err := url.Parse(c.PushgatewayURL); err != nil {
			return errors.NotValidf("%s %q", PushgatewayURLKey, c.PushgatewayURL)
		}
	}
	return nil
}

// ReadFile reads YAML attributes from path.
func ReadFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	attrs := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errors.NewNotValid(err, "cannot parse "+path)
	}
	return attrs, nil
}

// FromEnvironment returns the connection attributes found in the
// environment, looked up with getenv.
func FromEnvironment(getenv func(string) string) map[string]interface{} {
	attrs := make(map[string]interface{})
	for key, name := range map[string]string{
		RancherURLKey: EnvRancherURL,
		AccessKeyKey:  EnvRancherAccessKey,
		SecretKeyKey:  EnvRancherSecretKey,
	} {
		if value := getenv(name); value != "" {
			attrs[key] = value
		}
	}
	return attrs
}

// Merge returns a single attribute map in which later sources override
// earlier ones.
func Merge(sources ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, source := range sources {
		for k, v := range source {
			result[k] = v
		}
	}
	return result
}
