// Copyright 2021 IBM Corp.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apikeys is a client for the Google Cloud API Keys v2 REST API.
//
// The client covers creating API keys, restricting them to the IP
// addresses of the servers that call with them, and the read and
// lifecycle calls needed around that: get, keyString, lookup, list,
// delete and undelete.
package apikeys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudkeys/apikeys-go-client/auth"
)

const (
	// DefaultBaseURL is the public endpoint of the API Keys service.
	DefaultBaseURL = "https://apikeys.googleapis.com"

	// DefaultLocation is the only location API keys live in.
	DefaultLocation = "global"

	// DefaultTimeout is the per request timeout in seconds.
	DefaultTimeout = 30 // in seconds.

	// VerboseNone disables request dumps.
	VerboseNone = 0
	// VerboseFailOnly dumps requests that came back with an error status.
	VerboseFailOnly = 1
	// VerboseAll dumps every request and response.
	VerboseAll = 2

	apiVersionPath = "/v2/"
)

// ErrNoProject is returned by calls that need a project when none is configured.
var ErrNoProject = errors.New("apikeys: project id is not set")

// ErrEmptyKeyID is returned when a key id or name is required but empty.
var ErrEmptyKeyID = errors.New("apikeys: key id is empty")

// ClientConfig encapsulates configuration for the API Keys client.
type ClientConfig struct {
	BaseURL   string
	ProjectID string
	Location  string

	// AccessToken is used as-is when set. Otherwise the client falls back to
	// Application Default Credentials.
	AccessToken string

	UserAgent string
	Verbose   int     // See verbose values above
	Timeout   float64 // request timeout in seconds.
}

// Client holds configuration and auth information to interact with the
// API Keys service.
type Client struct {
	URL        *url.URL
	HttpClient http.Client
	Config     ClientConfig
	Logger     Logger

	tokenSource auth.TokenSource
}

// New creates and returns a Client without logging.
func New(config ClientConfig, transport http.RoundTripper) (*Client, error) {
	return NewWithLogger(config, transport, nil)
}

// NewWithLogger creates and returns a Client with logging. The
// default value for config.BaseURL is DefaultBaseURL, and for
// config.Location DefaultLocation.
func NewWithLogger(config ClientConfig, transport http.RoundTripper, logger Logger) (*Client, error) {
	if transport == nil {
		transport = DefaultTransport()
	}
	if logger == nil {
		logger = NewZerologLogger(nil)
	}
	if config.Verbose < VerboseNone || config.Verbose > VerboseAll {
		return nil, errors.New("verbose value is out of range")
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Location == "" {
		config.Location = DefaultLocation
	}

	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	u = u.ResolveReference(&url.URL{Path: apiVersionPath})

	var ts auth.TokenSource
	if config.AccessToken != "" {
		ts = auth.StaticToken(config.AccessToken)
	} else {
		ts = auth.CredentialFromGoogle(context.Background(), auth.CloudPlatformScope)
	}

	return &Client{
		URL: u,
		HttpClient: http.Client{
			Timeout:   time.Duration(config.Timeout * float64(time.Second)),
			Transport: transport,
		},
		Config:      config,
		Logger:      logger,
		tokenSource: ts,
	}, nil
}

// DefaultTransport returns a transport with the same dial and TLS timeouts
// as http.DefaultTransport.
func DefaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (c *Client) newRequest(method, path string, body interface{}) (*http.Request, error) {
	u := c.URL.ResolveReference(&url.URL{Path: path})

	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	request, err := http.NewRequest(method, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	request.Header.Set("accept", "application/json")
	if body != nil {
		request.Header.Set("content-type", "application/json")
	}
	if c.Config.UserAgent != "" {
		request.Header.Set("user-agent", c.Config.UserAgent)
	}

	return request, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, res interface{}) (*http.Response, error) {
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	// generate our own UUID for the correlation ID and feed it into the request.
	// A connection error might mean the request never made it server side,
	// so having a correlation ID locally helps when comparing with server logs.
	corrId := uuid.New().String()

	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", token.AccessToken))
	req.Header.Set("correlation-id", corrId)
	if c.Config.ProjectID != "" {
		req.Header.Set("x-goog-user-project", c.Config.ProjectID)
	}

	start := time.Now()
	response, err := processRequest(ctx, c, req)
	if err != nil {
		requestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, &URLError{err, corrId}
	}
	defer response.Body.Close()
	requestsTotal.WithLabelValues(req.Method, strconv.Itoa(response.StatusCode)).Inc()
	requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	resBody, err := ioutil.ReadAll(response.Body)
	c.dump(req, response, resBody, token.AccessToken)
	if err != nil {
		return nil, err
	}

	switch response.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if res != nil && len(resBody) > 0 {
			if err := json.Unmarshal(resBody, res); err != nil {
				return nil, err
			}
		}
	case http.StatusNoContent:
	default:
		return nil, newError(response, resBody, corrId)
	}

	return response, nil
}

type googleErrorDetail struct {
	Type            string            `json:"@type"`
	Reason          string            `json:"reason,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	FieldViolations []struct {
		Field       string `json:"field"`
		Description string `json:"description"`
	} `json:"fieldViolations,omitempty"`
}

type googleError struct {
	Error struct {
		Code    int                 `json:"code"`
		Message string              `json:"message"`
		Status  string              `json:"status"`
		Details []googleErrorDetail `json:"details,omitempty"`
	} `json:"error"`
}

func newError(response *http.Response, resBody []byte, corrId string) *Error {
	errMessage := strings.Trim(string(resBody), " \r\n")
	var status string
	var reasons []reason

	if strings.Contains(string(resBody), `"error"`) {
		gerr := googleError{}
		if json.Unmarshal(resBody, &gerr) == nil && gerr.Error.Message != "" {
			errMessage = gerr.Error.Message
			status = gerr.Error.Status
			for _, d := range gerr.Error.Details {
				if d.Reason != "" {
					reasons = append(reasons, reason{Code: d.Reason, Domain: d.Domain, Metadata: d.Metadata})
				}
				for _, fv := range d.FieldViolations {
					reasons = append(reasons, reason{Code: fv.Field, Message: fv.Description})
				}
			}
		}
	}

	return &Error{
		URL:           response.Request.URL.String(),
		StatusCode:    response.StatusCode,
		Status:        status,
		Message:       errMessage,
		BodyContent:   resBody,
		CorrelationID: corrId,
		Reasons:       reasons,
	}
}

type reason struct {
	Code     string
	Message  string
	Domain   string
	Metadata map[string]string
}

func (r reason) String() string {
	if r.Message == "" {
		return fmt.Sprintf("%s: %s", r.Code, r.Domain)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

type Error struct {
	URL           string   // URL of request that resulted in this error
	StatusCode    int      // HTTP error code from the API Keys service
	Status        string   // canonical status name, e.g. PERMISSION_DENIED
	Message       string   // error message from the API Keys service
	BodyContent   []byte   // raw body content if more inspection is needed
	CorrelationID string   // string value of a UUID that uniquely identifies the request
	Reasons       []reason // collection of reason types containing detailed error messages
}

// Error returns correlation id and error message string
func (e Error) Error() string {
	var extraVars string
	if len(e.Reasons) > 0 {
		extraVars = fmt.Sprintf(", reasons='%s'", e.Reasons)
	}

	return fmt.Sprintf("apikeys.Error: correlation_id='%v', status='%s', msg='%s'%s", e.CorrelationID, e.Status, e.Message, extraVars)
}

// URLError wraps an error from client.do() calls with a correlation ID
type URLError struct {
	Err           error
	CorrelationID string
}

func (e URLError) Error() string {
	return fmt.Sprintf(
		"error during request to API Keys correlation_id='%s': %s", e.CorrelationID, e.Err.Error())
}

func (e URLError) Unwrap() error {
	return e.Err
}

// IsAlreadyExists reports whether err is a 409 from the API Keys service.
func IsAlreadyExists(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is a 404 from the API Keys service.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
