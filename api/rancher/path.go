// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rancher

import (
	"net/url"
	"strings"

	"github.com/juju/errors"
)

// Path is an API location relative to the configured endpoint.
type Path struct {
	url url.URL
}

// MakePath parses the API endpoint.
func MakePath(endpoint string) (Path, error) {
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return Path{}, errors.Annotatef(err, "parsing endpoint %q", endpoint)
	}
	if u.Scheme == "" || u.Host == "" {
		return Path{}, errors.NotValidf("endpoint %q", endpoint)
	}
	return Path{url: *u}, nil
}

// Join returns a new path with the elements appended.
func (p Path) Join(elems ...string) Path {
	u := p.url
	for _, elem := range elems {
		u.Path = u.Path + "/" + elem
	}
	u.RawPath = ""
	return Path{url: u}
}

// Query returns a new path with values merged into the query string.
func (p Path) Query(values url.Values) Path {
	u := p.url
	q := u.Query()
	for key, vs := range values {
		for _, v := range vs {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return Path{url: u}
}

// String returns the absolute URL.
func (p Path) String() string {
	return p.url.String()
}
