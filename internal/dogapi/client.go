// Package dogapi fetches random dog photos from the dog.ceo API.
package dogapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Defaults for the public dog.ceo endpoint.
const (
	DefaultBaseURL = "https://dog.ceo/api"
	DefaultTimeout = 10 * time.Second

	randomImagePath = "/breeds/image/random"
	statusSuccess   = "success"
	maxBodyBytes    = 1 << 20
)

// ErrFetch is returned for every failed fetch: transport error, non-2xx
// response, malformed body or a non-success status.
var ErrFetch = errors.New("fetch random dog image")

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doggos_image_fetch_total",
			Help: "Total number of random image fetches by result",
		},
		[]string{"result"},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doggos_image_fetch_duration_seconds",
			Help:    "Random image fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// randomImageResponse is the dog.ceo payload. Unknown fields are ignored.
type randomImageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Client talks to the dog.ceo API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used to report failed fetches.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for baseURL. An empty baseURL selects
// DefaultBaseURL and a non-positive timeout selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid dog api base url: %w", err)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// RandomImage issues one GET for a random photo and returns its URL.
// Any failure is reported as an error wrapping ErrFetch; there are no retries.
func (c *Client) RandomImage(ctx context.Context) (string, error) {
	start := time.Now()
	imageURL, err := c.randomImage(ctx)
	fetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		fetchTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("random image fetch failed", zap.Error(err))
		return "", err
	}

	fetchTotal.WithLabelValues("success").Inc()
	c.logger.Debug("random image fetched", zap.String("image_url", imageURL))
	return imageURL, nil
}

func (c *Client) randomImage(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+randomImagePath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: new request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: do request: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: unexpected status code %d", ErrFetch, resp.StatusCode)
	}

	var body randomImageResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("%w: decode body: %w", ErrFetch, err)
	}

	if body.Status != statusSuccess {
		return "", fmt.Errorf("%w: api status %q", ErrFetch, body.Status)
	}

	imageURL := strings.TrimSpace(body.Message)
	if imageURL == "" {
		return "", fmt.Errorf("%w: empty image url", ErrFetch)
	}

	if u, err := url.Parse(imageURL); err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: image url %q is not absolute", ErrFetch, imageURL)
	}

	return imageURL, nil
}
