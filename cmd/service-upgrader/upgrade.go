// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	jujuhttp "github.com/juju/http/v2"
	"github.com/juju/loggo"

	"github.com/juju/service-upgrader/api/rancher"
	"github.com/juju/service-upgrader/cmd/output"
	"github.com/juju/service-upgrader/internal/lock"
	"github.com/juju/service-upgrader/internal/metrics"
	"github.com/juju/service-upgrader/internal/upgradeconfig"
	"github.com/juju/service-upgrader/internal/upgrader"
)

// pushTimeout bounds the time spent pushing metrics after the upgrade.
const pushTimeout = 10 * time.Second

const upgradeDoc = `
Upgrades a Rancher service in place and waits for the upgrade to finish.

The service is looked up by name within the given stack and environment.
It must be active. The upgrade replaces the service's containers using its
current launch config, and the service is then polled every
--status-check-interval until it is both upgraded and healthy, at which
point the upgrade is finished. If that does not happen within
--upgrade-timeout the command fails, rolling the service back first when
--rollback-on-fail is given.

Settings are read from the file named by --config, then from the
RANCHER_URL, RANCHER_ACCESS_KEY and RANCHER_SECRET_KEY environment
variables, then from the command line, later sources taking precedence.

Examples:

    service-upgrader --environment Default --stack shop --service web

    service-upgrader --config upgrade.yaml --rollback-on-fail --upgrade-timeout 5m
`

// NewUpgradeCommand returns a command that upgrades a Rancher service.
func NewUpgradeCommand() cmd.Command {
	return &upgradeCommand{
		attrs:     make(map[string]interface{}),
		getenv:    os.Getenv,
		clock:     clock.WallClock,
		lockDelay: lock.DefaultDelay,
	}
}

type upgradeCommand struct {
	cmd.CommandBase
	out cmd.Output

	configFile    string
	loggingConfig string
	debug         bool
	attrs         map[string]interface{}

	getenv    func(string) string
	clock     clock.Clock
	lockDelay time.Duration

	config *upgradeconfig.Config
}

// Info implements cmd.Command.
func (c *upgradeCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "service-upgrader",
		Purpose: "Upgrade a Rancher service and wait for it to become healthy.",
		Doc:     upgradeDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *upgradeCommand) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	c.out.AddFlags(f, output.FormatTabular, map[string]cmd.Formatter{
		output.FormatYAML:    cmd.FormatYaml,
		output.FormatJSON:    cmd.FormatJson,
		output.FormatTabular: formatSessionTabular,
	})

	f.StringVar(&c.configFile, "config", "", "Path to a YAML file of settings")
	f.StringVar(&c.loggingConfig, "logging-config", "<root>=INFO", "Logging configuration")
	f.BoolVar(&c.debug, "debug", false, "Log debug messages")

	for _, flag := range []struct {
		key   string
		kind  attrKind
		usage string
	}{
		{upgradeconfig.RancherURLKey, stringAttr, "Rancher API endpoint, e.g. http://rancher:8080/v1"},
		{upgradeconfig.AccessKeyKey, stringAttr, "Rancher API access key"},
		{upgradeconfig.SecretKeyKey, stringAttr, "Rancher API secret key"},
		{upgradeconfig.EnvironmentKey, stringAttr, "Environment containing the stack"},
		{upgradeconfig.StackKey, stringAttr, "Stack containing the service"},
		{upgradeconfig.ServiceKey, stringAttr, "Service to upgrade"},
		{upgradeconfig.UpgradeTimeoutKey, stringAttr, "How long to wait for the upgrade (default 10m)"},
		{upgradeconfig.StatusCheckIntervalKey, stringAttr, "Wait between status checks (default 5s)"},
		{upgradeconfig.RollbackOnFailKey, boolAttr, "Roll the service back if the upgrade times out"},
		{upgradeconfig.BatchSizeKey, intAttr, "Containers upgraded per batch (default 1)"},
		{upgradeconfig.BatchIntervalKey, stringAttr, "Delay between batches (default 2s)"},
		{upgradeconfig.StartFirstKey, boolAttr, "Start new containers before stopping old ones"},
		{upgradeconfig.StatusReadAttemptsKey, intAttr, "Attempts for each status check (default 1)"},
		{upgradeconfig.SkipTLSVerifyKey, boolAttr, "Skip verification of the API server certificate"},
		{upgradeconfig.PushgatewayURLKey, stringAttr, "Prometheus pushgateway to push metrics to"},
	} {
		f.Var(&attrValue{attrs: c.attrs, key: flag.key, kind: flag.kind}, flag.key, flag.usage)
	}
}

// Init implements cmd.Command.
func (c *upgradeCommand) Init(args []string) error {
	if err := cmd.CheckEmpty(args); err != nil {
		return errors.Trace(err)
	}

	var fileAttrs map[string]interface{}
	if c.configFile != "" {
		var err error
		if fileAttrs, err = upgradeconfig.ReadFile(c.configFile); err != nil {
			return errors.WithType(err, upgrader.ErrConfig)
		}
	}
	attrs := upgradeconfig.Merge(fileAttrs, upgradeconfig.FromEnvironment(c.getenv), c.attrs)

	config, err := upgradeconfig.New(attrs)
	if err != nil {
		return errors.WithType(err, upgrader.ErrConfig)
	}
	c.config = config
	return nil
}

// Run implements cmd.Command.
func (c *upgradeCommand) Run(ctx *cmd.Context) error {
	if err := c.setupLogging(ctx); err != nil {
		return errors.Trace(err)
	}

	stdCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := make(chan os.Signal, 1)
	ctx.InterruptNotify(interrupted)
	defer ctx.StopInterruptNotify(interrupted)
	go func() {
		select {
		case <-interrupted:
			logger.Warningf("interrupted, abandoning upgrade")
			cancel()
		case <-stdCtx.Done():
		}
	}()

	collector := metrics.NewCollector()
	client, err := c.newClient(collector)
	if err != nil {
		return errors.Trace(err)
	}

	svc, err := client.ResolveService(stdCtx, c.config.Environment, c.config.Stack, c.config.Service)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("found service %s in stack %q of environment %q", svc, c.config.Stack, c.config.Environment)

	locker, err := lock.New(lock.Config{
		Clock:  c.clock,
		Logger: logger.Child("lock"),
		Delay:  c.lockDelay,
	})
	if err != nil {
		return errors.Trace(err)
	}
	orchestrator, err := upgrader.NewOrchestrator(upgrader.Config{
		Client:         client,
		Locker:         locker,
		Clock:          c.clock,
		Logger:         logger.Child("upgrader"),
		Strategy:       c.config.Strategy,
		Timeout:        c.config.UpgradeTimeout,
		PollInterval:   c.config.StatusCheckInterval,
		RollbackOnFail: c.config.RollbackOnFail,
		ReadAttempts:   c.config.StatusReadAttempts,
	})
	if err != nil {
		return errors.Trace(err)
	}

	session, runErr := orchestrator.Run(stdCtx, svc)

	collector.ObserveSession(session.Outcome.String(), session.Elapsed, session.Ticks)
	c.pushMetrics(svc.ID, collector)

	if err := c.out.Write(ctx, newSessionResult(session, runErr)); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(runErr)
}

func (c *upgradeCommand) setupLogging(ctx *cmd.Context) error {
	writer := loggo.NewSimpleWriter(ctx.Stderr, loggo.DefaultFormatter)
	_, _ = loggo.RemoveWriter(loggo.DefaultWriterName)
	if err := loggo.RegisterWriter(loggo.DefaultWriterName, writer); err != nil {
		return errors.Annotate(err, "setting up logging")
	}
	spec := c.loggingConfig
	if c.debug {
		spec += ";<root>=DEBUG"
	}
	return errors.Annotate(loggo.ConfigureLoggers(spec), "configuring logging")
}

func (c *upgradeCommand) newClient(recorder jujuhttp.RequestRecorder) (*rancher.Client, error) {
	path, err := rancher.MakePath(c.config.RancherURL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	httpLogger := logger.Child("http")
	transport := rancher.DefaultHTTPTransport(rancher.TransportConfig{
		Logger:        httpLogger,
		Recorder:      recorder,
		SkipTLSVerify: c.config.SkipTLSVerify,
	})
	requester := rancher.NewAPIRequester(transport, httpLogger)
	return rancher.NewClient(path, rancher.NewHTTPRESTClient(requester, c.config.AccessKey, c.config.SecretKey)), nil
}

// pushMetrics pushes to the configured gateway, if any. Failures are only
// logged.
func (c *upgradeCommand) pushMetrics(serviceID string, collector *metrics.Collector) {
	if c.config.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(ctx, c.config.PushgatewayURL, serviceID, collector); err != nil {
		logger.Warningf("%v", err)
	}
}
