package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/booking"
)

const maxErrorBody = 2048

// Client talks JSON to the hotel supplier.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewClient returns a Client. timeout bounds every call; zero means 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

// CheckRatesRequest asks the supplier to reprice a selection before payment.
type CheckRatesRequest struct {
	HotelCode string   `json:"hotel_code"`
	SessionID string   `json:"session_id,omitempty"`
	RateKeys  []string `json:"rate_keys"`
}

// CheckedRate is the supplier's current view of one rate.
type CheckedRate struct {
	RateKey   string   `json:"rate_key"`
	Net       *float64 `json:"net,omitempty"`
	Gross     *float64 `json:"gross,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Available bool     `json:"available"`
}

// CheckRatesResponse lists the repriced rates.
type CheckRatesResponse struct {
	HotelCode string        `json:"hotel_code"`
	Rates     []CheckedRate `json:"rates"`
}

// Error is a non-2xx supplier answer.
type Error struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("supplier %s: %d %s", e.Path, e.StatusCode, e.Body)
}

// Book places the booking. Any error means the booking did not happen.
func (c *Client) Book(ctx context.Context, payload booking.Payload) (*booking.Result, error) {
	var out booking.Result
	if err := c.post(ctx, "/bookings", payload, &out); err != nil {
		return nil, err
	}
	if out.Reference == "" {
		return nil, fmt.Errorf("supplier /bookings: response without reference")
	}
	return &out, nil
}

// CheckRates reprices rate keys ahead of checkout.
func (c *Client) CheckRates(ctx context.Context, req CheckRatesRequest) (*CheckRatesResponse, error) {
	var out CheckRatesResponse
	if err := c.post(ctx, "/checkrates", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supplier %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("supplier call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
