package processor

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

	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// getRetryIntervals spaces out retries of idempotent reads. Creates are
// never retried.
var getRetryIntervals = []time.Duration{
	200 * time.Millisecond,
	time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the HTTP implementation of ports.PaymentProcessor.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	retries    []time.Duration
	log        zerolog.Logger
}

// NewClient creates a processor client rooted at baseURL.
func NewClient(baseURL, apiKey string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		retries:    getRetryIntervals,
		log:        log,
	}
}

// apiError is the processor's error body.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError is a non-2xx processor response.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("processor returned %d: %s", e.status, e.message)
}

func (e *statusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

func (c *Client) CreateCharge(ctx context.Context, req ports.ChargeRequest) (*ports.Charge, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("payment_method_types[]", "card")
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var pi paymentIntent
	if err := c.do(httpReq, &pi); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	c.log.Info().Str("reference_id", pi.ID).Str("currency", req.Currency).Msg("processor charge created")
	return pi.toCharge(), nil
}

// GetCharge returns nil, nil when the processor does not know the reference.
func (c *Client) GetCharge(ctx context.Context, referenceID string) (*ports.Charge, error) {
	endpoint := c.baseURL + "/v1/payment_intents/" + url.PathEscape(referenceID)

	var lastErr error
	for attempt := 0; attempt <= len(c.retries); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retries[attempt-1]):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build get request: %w", err)
		}

		var pi paymentIntent
		err = c.do(httpReq, &pi)
		if err == nil {
			return pi.toCharge(), nil
		}

		var se *statusError
		if errors.As(err, &se) {
			if se.status == http.StatusNotFound {
				return nil, nil
			}
			if !se.retryable() {
				return nil, fmt.Errorf("get payment intent: %w", err)
			}
		}
		lastErr = err
		c.log.Warn().Err(err).Str("reference_id", referenceID).Int("attempt", attempt+1).Msg("processor: get charge failed, retrying")
	}

	return nil, fmt.Errorf("get payment intent: %w", lastErr)
}

func (c *Client) ParseEvent(payload []byte) (*ports.ProcessorEvent, error) {
	return ParseEvent(payload)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{status: resp.StatusCode, message: http.StatusText(resp.StatusCode)}
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			se.message = apiErr.Error.Message
		}
		return se
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
