package api

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the production query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// SMAParams are the extra query parameters sent with the SMA function.
type SMAParams struct {
	Interval   string // e.g. "60min", "daily"
	TimePeriod int
	SeriesType string // open, high, low, close
}

// DefaultSMAParams returns 60min / 200 / close.
func DefaultSMAParams() SMAParams {
	return SMAParams{Interval: "60min", TimePeriod: 200, SeriesType: "close"}
}

// Client provides access to the market-data REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	intradayInterval string
	sma              SMAParams
	outputSize       string // empty means upstream default ("compact")
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:           slog.Default(),
		intradayInterval: "5min",
		sma:              DefaultSMAParams(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithIntradayInterval sets the bar interval for TIME_SERIES_INTRADAY (1min, 5min, 15min, 30min, 60min).
func WithIntradayInterval(interval string) ClientOption {
	return func(c *Client) {
		if interval != "" {
			c.intradayInterval = interval
		}
	}
}

// WithSMAParams sets the SMA query parameters. Zero fields keep their defaults.
func WithSMAParams(p SMAParams) ClientOption {
	return func(c *Client) {
		if p.Interval != "" {
			c.sma.Interval = p.Interval
		}
		if p.TimePeriod > 0 {
			c.sma.TimePeriod = p.TimePeriod
		}
		if p.SeriesType != "" {
			c.sma.SeriesType = p.SeriesType
		}
	}
}

// WithOutputSize sets the outputsize parameter ("compact" or "full").
func WithOutputSize(size string) ClientOption {
	return func(c *Client) {
		c.outputSize = size
	}
}

// IntradayInterval returns the configured intraday bar interval.
func (c *Client) IntradayInterval() string { return c.intradayInterval }
