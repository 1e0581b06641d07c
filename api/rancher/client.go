// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package rancher is a client for the parts of the Rancher v1 API needed
// to upgrade a single service: resolving names to a service and driving the
// service's in-service upgrade actions.
package rancher

import (
	"context"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/juju/errors"

	"github.com/juju/service-upgrader/core/service"
)

const (
	actionUpgrade       = "upgrade"
	actionFinishUpgrade = "finishupgrade"
	actionRollback      = "rollback"
)

// Client drives service upgrades through the Rancher API.
type Client struct {
	path   Path
	client RESTClient
}

// NewClient creates a Client rooted at path.
func NewClient(path Path, client RESTClient) *Client {
	return &Client{
		path:   path,
		client: client,
	}
}

// Service returns a fresh snapshot of the service with the given id.
func (c *Client) Service(ctx context.Context, id string) (service.Service, error) {
	var resp Service
	if err := c.client.Get(ctx, c.path.Join("services", id), &resp); err != nil {
		return service.Service{}, errors.Annotatef(err, "getting service %q", id)
	}
	return toService(resp), nil
}

// Upgrade starts an in-service upgrade of the service using strategy.
func (c *Client) Upgrade(ctx context.Context, id string, strategy service.Strategy) error {
	body := ServiceUpgrade{
		InServiceStrategy: &InServiceUpgradeStrategy{
			BatchSize:      int64(strategy.BatchSize),
			IntervalMillis: int64(strategy.Interval / time.Millisecond),
			StartFirst:     strategy.StartFirst,
			LaunchConfig:   strategy.LaunchConfig,
		},
	}
	if err := c.client.Post(ctx, c.action(id, actionUpgrade), body, nil); err != nil {
		return errors.Annotatef(err, "upgrading service %q", id)
	}
	return nil
}

// FinishUpgrade commits a completed upgrade.
func (c *Client) FinishUpgrade(ctx context.Context, id string) error {
	if err := c.client.Post(ctx, c.action(id, actionFinishUpgrade), nil, nil); err != nil {
		return errors.Annotatef(err, "finishing upgrade of service %q", id)
	}
	return nil
}

// Rollback reverts the service to its launch config from before the
// upgrade.
func (c *Client) Rollback(ctx context.Context, id string) error {
	if err := c.client.Post(ctx, c.action(id, actionRollback), nil, nil); err != nil {
		return errors.Annotatef(err, "rolling back service %q", id)
	}
	return nil
}

func (c *Client) action(id, action string) Path {
	return c.path.Join("services", id).Query(url.Values{"action": {action}})
}

// projectFilter, stackFilter and serviceFilter are the list filters sent
// while resolving names.
type projectFilter struct {
	Name string `url:"name"`
}

type stackFilter struct {
	Name      string `url:"name"`
	AccountID string `url:"accountId"`
}

type serviceFilter struct {
	Name          string `url:"name"`
	AccountID     string `url:"accountId"`
	EnvironmentID string `url:"environmentId"`
}

// ResolveService finds the named service in the named stack of the named
// environment. When several resources share a name the first one listed
// wins. A name that does not resolve satisfies errors.NotFound.
func (c *Client) ResolveService(ctx context.Context, environment, stack, name string) (service.Service, error) {
	var projects ProjectCollection
	if err := c.list(ctx, "projects", projectFilter{Name: environment}, &projects); err != nil {
		return service.Service{}, errors.Trace(err)
	}
	var project *Project
	for i := range projects.Data {
		if projects.Data[i].Name == environment {
			project = &projects.Data[i]
			break
		}
	}
	if project == nil {
		return service.Service{}, errors.NotFoundf("environment %q", environment)
	}

	var stacks StackCollection
	if err := c.list(ctx, "environments", stackFilter{Name: stack, AccountID: project.ID}, &stacks); err != nil {
		return service.Service{}, errors.Trace(err)
	}
	if len(stacks.Data) == 0 {
		return service.Service{}, errors.NotFoundf("stack %q in environment %q", stack, environment)
	}
	stackID := stacks.Data[0].ID

	var services ServiceCollection
	filter := serviceFilter{Name: name, AccountID: project.ID, EnvironmentID: stackID}
	if err := c.list(ctx, "services", filter, &services); err != nil {
		return service.Service{}, errors.Trace(err)
	}
	if len(services.Data) == 0 {
		return service.Service{}, errors.NotFoundf("service %q in stack %q", name, stack)
	}
	return toService(services.Data[0]), nil
}

func (c *Client) list(ctx context.Context, collection string, filter, result interface{}) error {
	values, err := query.Values(filter)
	if err != nil {
		return errors.Annotate(err, "failed to generate URL query from filter")
	}
	if err := c.client.Get(ctx, c.path.Join(collection).Query(values), result); err != nil {
		return errors.Annotatef(err, "listing %s", collection)
	}
	return nil
}

func toService(s Service) service.Service {
	return service.Service{
		ID:           s.ID,
		Name:         s.Name,
		State:        service.State(s.State),
		HealthState:  service.HealthState(s.HealthState),
		LaunchConfig: s.LaunchConfig,
	}
}
