package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/appletsync/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/tracing"
)

// Client wraps resty with rate limiting and a circuit breaker for uploads
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex

	// Deadlines are applied per call through the request context
	timeout       time.Duration
	uploadTimeout time.Duration
}

// Config defines client behavior
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration
	RateLimit     float64 // requests per second, 0 for unlimited
	UserAgent     string
}

// DefaultConfig returns the client defaults used by the sync engine
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:8000",
		Timeout:       10 * time.Second,
		UploadTimeout: 2 * time.Minute,
		RetryCount:    0,
		RetryWait:     time.Second,
		RetryMaxWait:  10 * time.Second,
		UserAgent:     "AppletSync/1.0",
	}
}

// NewClient creates an applet server client
func NewClient(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaults.UploadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	// Pooled transport from the retryable client; retries stay in resty
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetHeader("User-Agent", cfg.UserAgent).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	// Applet generation is slow and expensive; stop hammering it when it fails
	breaker := resilience.New("applet-uploads", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	c := &Client{
		Resty:   restyClient,
		Limiter: rate.NewLimiter(rate.Inf, 0),
		Breaker: breaker,

		timeout:       cfg.Timeout,
		uploadTimeout: cfg.UploadTimeout,
	}
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// SetTimeout configures the deadline for read and write calls
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.timeout = duration
}

// deadline derives a call context bounded by d
func (c *Client) deadline(ctx context.Context, upload bool) (context.Context, context.CancelFunc) {
	c.Mu.RLock()
	d := c.timeout
	if upload {
		d = c.uploadTimeout
	}
	c.Mu.RUnlock()

	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// SetBearerAuth configures bearer token authentication
func (c *Client) SetBearerAuth(token string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetAuthToken(token)
}

// Request creates a new request after waiting for the rate limiter. A trace
// carried by ctx is propagated in the request headers.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	req := c.Resty.R().SetContext(ctx)
	tracing.Inject(ctx, req.Header)
	return req, nil
}

// ExecuteWithBreaker executes an HTTP operation with circuit breaker protection.
// Non-2xx responses count as failures.
func (c *Client) ExecuteWithBreaker(fn func() (*resty.Response, error)) (*resty.Response, error) {
	result, err := c.Breaker.Execute(func() (interface{}, error) {
		resp, err := fn()
		if err != nil {
			return resp, err
		}
		if resp != nil && resp.IsError() {
			return resp, errServerFailure
		}
		return resp, nil
	})

	if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
		return nil, fmt.Errorf("applet server unavailable: %w", err)
	}

	resp, _ := result.(*resty.Response)
	if err == errServerFailure {
		return resp, nil
	}
	return resp, err
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}
