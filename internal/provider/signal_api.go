package provider

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"hydra-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	requestLang      = "uk"
	requestModelType = "xgb"
)

// UpstreamError is a non-2xx response from the signal API. 5xx responses are
// transient and retried; 4xx responses are not.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Transient() bool {
	return e.StatusCode >= 500
}

// SignalAPIClient fetches per-instrument signal snapshots from the
// model-serving API.
type SignalAPIClient struct {
	tracer     trace.Tracer
	httpClient *http.Client
	baseURL    string
	timeframes []string
	retries    int

	// backoff between retry attempts, indexed by attempt; overridable in tests.
	backoff func(attempt int) time.Duration
}

func NewSignalAPIClient(tracer trace.Tracer, baseURL string, timeout time.Duration, retries int, timeframes []string) *SignalAPIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if len(timeframes) == 0 {
		timeframes = domain.SupportedTimeframes
	}
	return &SignalAPIClient{
		tracer:     tracer,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		timeframes: timeframes,
		retries:    retries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * time.Second
		},
	}
}

// FetchObservations requests signals for one instrument across all configured
// timeframes. Transient failures are retried with increasing backoff; a 4xx
// response fails immediately.
func (c *SignalAPIClient) FetchObservations(ctx context.Context, ticker string) ([]domain.Observation, error) {
	_, span := c.tracer.Start(ctx, "signal-api.fetch-observations")
	defer span.End()

	pair := ticker + "USDT"

	params := url.Values{}
	params.Set("pair", pair)
	params.Set("lang", requestLang)
	params.Set("model_type", requestModelType)
	for _, tf := range c.timeframes {
		params.Add("timeframes", tf)
	}
	reqURL := c.baseURL + "/multi_signal?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			log.Printf("retrying signal fetch for %s (attempt %d/%d)", pair, attempt+1, c.retries+1)
		}

		body, err := c.doRequest(ctx, reqURL)
		if err == nil {
			return ParseResponse(body, ticker)
		}

		if upstream, ok := err.(*UpstreamError); ok && !upstream.Transient() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, fmt.Errorf("fetch signals for %s: %w", pair, lastErr)
}

func (c *SignalAPIClient) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Hydra-Bot/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: preview}
	}

	return body, nil
}
