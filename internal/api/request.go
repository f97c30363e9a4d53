package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/stock-data/internal/model"
)

// maxBodyBytes caps a response body; "full" daily history is a few MB.
const maxBodyBytes = 64 << 20

// ErrorKind classifies a fetch failure by what the caller should do next.
type ErrorKind int

const (
	// Transient failures may succeed on retry (5xx, network, timeouts, torn bodies).
	Transient ErrorKind = iota
	// RateLimited means the upstream throttled us; back off globally and retry.
	RateLimited
	// Permanent failures will not change on retry (bad symbol, bad key, premium endpoint).
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case RateLimited:
		return "rate_limited"
	case Permanent:
		return "permanent"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// FetchError represents a failed fetch. It never carries the request URL,
// which holds the API key.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Body       []byte
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s error %d: %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error should trigger a retry.
func (e *FetchError) IsRetryable() bool {
	return e.Kind == Transient || e.Kind == RateLimited
}

// KindOf returns the kind of the first *FetchError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsRateLimited reports whether err is a throttling signal from the upstream.
func IsRateLimited(err error) bool {
	k, ok := KindOf(err)
	return ok && k == RateLimited
}

// Fetch performs one GET for symbol and endpoint and returns the decoded body.
// It makes no retries. Errors are *FetchError, or the context's error when ctx
// is done.
func (c *Client) Fetch(ctx context.Context, symbol string, endpoint model.EndpointKind) (RawPayload, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, &FetchError{Kind: Permanent, Message: "empty symbol"}
	}
	function := endpoint.Function()
	if function == "" {
		return nil, &FetchError{Kind: Permanent, Message: "unknown endpoint " + endpoint.String()}
	}

	start := time.Now()
	body, err := c.doRequest(ctx, c.query(symbol, endpoint))
	if err != nil {
		return nil, err
	}

	payload, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched",
		"symbol", symbol,
		"function", function,
		"bytes", len(body),
		"duration", time.Since(start),
	)
	return payload, nil
}

// query builds the parameters for one call. The API key is added here and
// nowhere else.
func (c *Client) query(symbol string, endpoint model.EndpointKind) url.Values {
	q := url.Values{}
	q.Set("function", endpoint.Function())
	q.Set("symbol", symbol)

	switch endpoint {
	case model.Intraday:
		q.Set("interval", c.intradayInterval)
	case model.SMA:
		q.Set("interval", c.sma.Interval)
		q.Set("time_period", strconv.Itoa(c.sma.TimePeriod))
		q.Set("series_type", c.sma.SeriesType)
	}
	if c.outputSize != "" && endpoint != model.SMA {
		q.Set("outputsize", c.outputSize)
	}

	q.Set("apikey", c.apiKey)
	return q
}

// doRequest performs the HTTP GET and maps transport and status failures.
func (c *Client) doRequest(ctx context.Context, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: Permanent, Message: "create request", Err: stripURL(err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{Kind: Transient, Message: "do request", Err: stripURL(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{Kind: Transient, StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Kind: RateLimited, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: body}
	case resp.StatusCode >= 500:
		return nil, &FetchError{Kind: Transient, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: body}
	case resp.StatusCode >= 400:
		return nil, &FetchError{Kind: Permanent, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Body: body}
	}

	return body, nil
}

// decodeBody parses a 200 body and maps the upstream's in-band error keys.
func decodeBody(body []byte) (RawPayload, error) {
	var payload RawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Kind: Transient, StatusCode: http.StatusOK, Message: "malformed body", Body: body, Err: err}
	}
	if payload == nil {
		return nil, &FetchError{Kind: Transient, StatusCode: http.StatusOK, Message: "empty body", Body: body}
	}

	if msg, ok := payload.String(KeyErrorMessage); ok {
		return nil, &FetchError{Kind: Permanent, StatusCode: http.StatusOK, Message: msg, Body: body}
	}
	if _, ok := payload[KeyErrorMessage]; ok {
		return nil, &FetchError{Kind: Permanent, StatusCode: http.StatusOK, Message: "error message in body", Body: body}
	}
	if msg, ok := payload.String(KeyNote); ok {
		return nil, &FetchError{Kind: RateLimited, StatusCode: http.StatusOK, Message: msg, Body: body}
	}
	if msg, ok := payload.String(KeyInformation); ok {
		kind := Permanent
		if mentionsRateLimit(msg) {
			kind = RateLimited
		}
		return nil, &FetchError{Kind: kind, StatusCode: http.StatusOK, Message: msg, Body: body}
	}

	return payload, nil
}

var rateLimitPhrases = []string{
	"rate limit",
	"call frequency",
	"request frequency",
	"requests per",
	"calls per",
}

func mentionsRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	for _, p := range rateLimitPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// stripURL drops the URL from a *url.Error so the API key never reaches logs.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
