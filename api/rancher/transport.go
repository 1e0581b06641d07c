// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rancher

// Wire types of the Rancher v1 API. Only the attributes the upgrader reads
// are declared; everything else in a response is ignored.

// Project is a Rancher environment.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state,omitempty"`
}

// ProjectCollection is the response of a project listing.
type ProjectCollection struct {
	Data []Project `json:"data"`
}

// Stack is a group of services within a project. The v1 API calls it an
// "environment".
type Stack struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccountID string `json:"accountId"`
}

// StackCollection is the response of a stack listing.
type StackCollection struct {
	Data []Stack `json:"data"`
}

// Service is a deployable unit within a stack.
type Service struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	State         string                 `json:"state"`
	HealthState   string                 `json:"healthState"`
	AccountID     string                 `json:"accountId"`
	EnvironmentID string                 `json:"environmentId"`
	LaunchConfig  map[string]interface{} `json:"launchConfig"`
}

// ServiceCollection is the response of a service listing.
type ServiceCollection struct {
	Data []Service `json:"data"`
}

// InServiceUpgradeStrategy replaces containers of a service in place.
type InServiceUpgradeStrategy struct {
	BatchSize      int64                  `json:"batchSize"`
	IntervalMillis int64                  `json:"intervalMillis"`
	StartFirst     bool                   `json:"startFirst"`
	LaunchConfig   map[string]interface{} `json:"launchConfig,omitempty"`
}

// ServiceUpgrade is the body of the upgrade action.
type ServiceUpgrade struct {
	InServiceStrategy *InServiceUpgradeStrategy `json:"inServiceStrategy"`
}

// APIError is the body of a failed API request.
type APIError struct {
	Type    string `json:"type"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Error implements error.
func (e APIError) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}
