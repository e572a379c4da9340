// Package dav sends KQL queries to the storage backend's WebDAV search
// endpoint and decodes the multistatus reply.
package dav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned when the backend rejects the credentials.
var ErrUnauthorized = errors.New("dav: unauthorized")

// StatusError is returned for any other unexpected response status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dav: server returned %s: %s", e.Status, e.Body)
}

// Options configures a Client. Token wins over User/Password when both are
// set.
type Options struct {
	URL      string
	User     string
	Password string
	Token    string
	RetryMax int
	Timeout  time.Duration
}

type Client struct {
	url        string
	user       string
	password   string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = leveledLogger{log: log}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryClient.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		url:        strings.TrimRight(opts.URL, "/"),
		user:       opts.User,
		password:   opts.Password,
		token:      opts.Token,
		httpClient: retryClient.StandardClient(),
		log:        log,
	}
}

func (c *Client) prepareRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	if c.url == "" {
		return nil, errors.New("dav: no server URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Depth", "1")
	return req, nil
}

func (c *Client) signRequest(req *http.Request) {
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.user != "":
		req.SetBasicAuth(c.user, c.password)
	}
}

// sendRequest performs req and returns the body of a 207 reply together with
// the response headers.
func (c *Client) sendRequest(req *http.Request) ([]byte, http.Header, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Search request finished")

	switch resp.StatusCode {
	case http.StatusMultiStatus, http.StatusOK:
		return bodyBytes, resp.Header, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, ErrUnauthorized
	}
	return nil, nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(bodyBytes)),
	}
}

// leveledLogger lets retryablehttp report retries through zerolog.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
