// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package rancher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/juju/errors"
	jujuhttp "github.com/juju/http/v2"
	"gopkg.in/httprequest.v1"
)

// JSON is the MIME type of every request and response body.
const JSON = "application/json"

// Logger represents the logging methods used by the client.
type Logger interface {
	IsTraceEnabled() bool
	Tracef(message string, args ...interface{})
	Debugf(message string, args ...interface{})
	Errorf(message string, args ...interface{})
}

// Transport defines a type for making the actual request.
type Transport interface {
	// Do performs the *http.Request and returns a *http.Response or an error
	// if it fails to construct the transport.
	Do(*http.Request) (*http.Response, error)
}

// TransportConfig holds the options of the default transport.
type TransportConfig struct {
	// Logger receives request and response dumps at trace level.
	Logger Logger

	// Recorder, if not nil, is told about every request.
	Recorder jujuhttp.RequestRecorder

	// SkipTLSVerify disables certificate hostname verification.
	SkipTLSVerify bool
}

// DefaultHTTPTransport creates a new transport backed by the juju http
// client.
func DefaultHTTPTransport(cfg TransportConfig) Transport {
	options := []jujuhttp.Option{
		jujuhttp.WithLogger(cfg.Logger),
		jujuhttp.WithSkipHostnameVerification(cfg.SkipTLSVerify),
	}
	if cfg.Recorder != nil {
		options = append(options, jujuhttp.WithRequestRecorder(cfg.Recorder))
	}
	return jujuhttp.NewClient(options...)
}

// APIRequester wraps a transport, turning unsuccessful responses into
// errors.
type APIRequester struct {
	transport Transport
	logger    Logger
}

// NewAPIRequester creates a new APIRequester.
func NewAPIRequester(transport Transport, logger Logger) *APIRequester {
	return &APIRequester{
		transport: transport,
		logger:    logger,
	}
}

// Do performs the request. Any response outside the 2xx range is returned
// as an error: 404 satisfies errors.NotFound and 401/403 satisfy
// errors.Unauthorized.
func (t *APIRequester) Do(req *http.Request) (*http.Response, error) {
	if t.logger.IsTraceEnabled() {
		if data, err := httputil.DumpRequest(req, true); err == nil {
			t.logger.Tracef("%s request %s", req.Method, data)
		} else {
			t.logger.Tracef("%s request DumpRequest error %s", req.Method, err.Error())
		}
	}

	resp, err := t.transport.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if t.logger.IsTraceEnabled() {
		if data, err := httputil.DumpResponse(resp, true); err == nil {
			t.logger.Tracef("%s response %s", req.Method, data)
		}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	apiErr := APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), JSON) {
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			t.logger.Debugf("cannot decode error response from %s: %v", req.URL, err)
		}
	}
	t.logger.Errorf("%s %s: %d %v", req.Method, req.URL.Path, resp.StatusCode, apiErr)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, errors.WithType(errors.Annotatef(apiErr, "%s %s", req.Method, req.URL.Path), errors.NotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, errors.WithType(errors.Annotatef(apiErr, "%s %s", req.Method, req.URL.Path), errors.Unauthorized)
	}
	return nil, errors.Annotatef(apiErr, "%s %s", req.Method, req.URL.Path)
}

// RESTClient defines a type for making requests to the API.
type RESTClient interface {
	// Get performs GET requests to a given Path.
	Get(ctx context.Context, path Path, result interface{}) error
	// Post performs POST requests to a given Path.
	Post(ctx context.Context, path Path, body, result interface{}) error
}

// HTTPRESTClient represents a RESTClient that expects to interact with a
// HTTP transport.
type HTTPRESTClient struct {
	transport Transport
	headers   http.Header
}

// NewHTTPRESTClient creates a new HTTPRESTClient authenticating with the
// given API key pair.
func NewHTTPRESTClient(transport Transport, accessKey, secretKey string) *HTTPRESTClient {
	return &HTTPRESTClient{
		transport: transport,
		headers:   jujuhttp.BasicAuthHeader(accessKey, secretKey),
	}
}

// Get makes a GET request to the given path, parsing the result as JSON
// into result, which may be nil if no result is desired.
func (c *HTTPRESTClient) Get(ctx context.Context, path Path, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path.String(), nil)
	if err != nil {
		return errors.Annotate(err, "can not make new request")
	}
	return c.do(req, result)
}

// Post makes a POST request to the given path with body encoded as JSON,
// parsing the result as JSON into result.
func (c *HTTPRESTClient) Post(ctx context.Context, path Path, body, result interface{}) error {
	buffer := new(bytes.Buffer)
	if body != nil {
		if err := json.NewEncoder(buffer).Encode(body); err != nil {
			return errors.Trace(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path.String(), buffer)
	if err != nil {
		return errors.Annotate(err, "can not make new request")
	}
	req.Header.Set("Content-Type", JSON)
	return c.do(req, result)
}

func (c *HTTPRESTClient) do(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", JSON)
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := httprequest.UnmarshalJSONResponse(resp, result); err != nil {
		return errors.Annotatef(err, "%s %s", req.Method, req.URL.Path)
	}
	return nil
}
