package request

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/metrics"
	"github.com/syntrixbase/kinsync/pkg/model"
)

const (
	HeaderAPIVersion    = "X-Kinvey-API-Version"
	HeaderAuthorization = "Authorization"
	HeaderUserAgent     = "User-Agent"
)

// Options configures a Client. Zero values pick defaults.
type Options struct {
	BaseURL       string
	APIVersion    int
	UserAgent     string
	Timeout       time.Duration
	Transport     Transport
	Authenticator *Authenticator
	Logger        *slog.Logger
}

// Client resolves auth and common headers, then hands requests to its
// Transport.
type Client struct {
	baseURL    string
	apiVersion int
	userAgent  string
	timeout    time.Duration
	transport  Transport
	auth       *Authenticator
	logger     *slog.Logger
}

func NewClient(opts Options) *Client {
	if opts.Transport == nil {
		opts.Transport = NewHTTPTransport(nil)
	}
	if opts.Authenticator == nil {
		opts.Authenticator = NewAuthenticator(Credentials{}, nil)
	}
	if opts.APIVersion == 0 {
		opts.APIVersion = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "kinsync"
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiVersion: opts.APIVersion,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		transport:  opts.Transport,
		auth:       opts.Authenticator,
		logger:     logging.Component(opts.Logger, "request"),
	}
}

// NewClientFromConfig builds a Client for the configured application.
func NewClientFromConfig(app config.AppConfig, httpCfg config.HTTPConfig, sessions SessionStore, logger *slog.Logger) *Client {
	return NewClient(Options{
		BaseURL:    app.BaseURL,
		APIVersion: app.APIVersion,
		UserAgent:  httpCfg.UserAgent,
		Timeout:    httpCfg.Timeout,
		Authenticator: NewAuthenticator(Credentials{
			AppKey:       app.AppKey,
			AppSecret:    app.AppSecret,
			MasterSecret: app.MasterSecret,
		}, sessions),
		Logger: logger,
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

// Do sends req and returns whatever response came back. Only auth resolution
// and transport failures are errors; status codes are left to the caller.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	authHeader, err := c.auth.Header(req.Auth)
	if err != nil {
		return nil, err
	}

	out := *req
	out.Headers = req.Headers.Clone()
	if strings.HasPrefix(out.URL, "/") {
		out.URL = c.baseURL + out.URL
	}
	if out.Timeout == 0 {
		out.Timeout = c.timeout
	}
	out.SetHeader(HeaderAPIVersion, strconv.Itoa(c.apiVersion))
	if out.Headers.Get(HeaderUserAgent) == "" {
		out.SetHeader(HeaderUserAgent, c.userAgent)
	}
	if authHeader != "" {
		out.SetHeader(HeaderAuthorization, authHeader)
	}

	start := time.Now()
	resp, err := c.transport.Execute(ctx, &out)
	elapsed := time.Since(start)
	metrics.RequestDuration.WithLabelValues(out.Method).Observe(elapsed.Seconds())
	if err != nil {
		err = model.WrapError(err)
		metrics.RequestsTotal.WithLabelValues(out.Method, "error").Inc()
		c.logger.Debug("request failed", "method", out.Method, "url", out.URL, "error", err)
		return nil, err
	}

	metrics.RequestsTotal.WithLabelValues(out.Method, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("request done",
		"method", out.Method,
		"url", out.URL,
		"status", resp.StatusCode,
		"duration", elapsed,
	)
	return resp, nil
}

// Execute is Do followed by classification: an unsuccessful response is
// returned together with its classified error.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		var kerr *model.Error
		if errors.As(err, &kerr) {
			metrics.RequestErrors.WithLabelValues(kerr.Name).Inc()
		}
		return resp, err
	}
	return resp, nil
}
