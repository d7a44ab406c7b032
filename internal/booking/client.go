// ABOUTME: HTTP client for the external booking, identity and balance services
// ABOUTME: Plain request/response calls - latency and failure are opaque to callers

package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the booking service REST API. Calls are never retried
// here; a failed create or approve is reported to the caller and the
// authoritative record stays whatever the service says it is.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a booking service client. Pass nil logger for default.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("component", "booking-client"),
	}
}

// CreateAmendment persists a new amendment and returns its assigned id.
func (c *Client) CreateAmendment(ctx context.Context, a *Amendment) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/amendments", a, &out); err != nil {
		return "", fmt.Errorf("create amendment: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("create amendment: service returned no id")
	}
	return out.ID, nil
}

// ApproveAmendment records one party's approval on the authoritative record.
func (c *Client) ApproveAmendment(ctx context.Context, id string, cancellation, asDriver bool) error {
	body := map[string]bool{
		"cancellation": cancellation,
		"as_driver":    asDriver,
	}
	path := "/amendments/" + url.PathEscape(id) + "/approve"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("approve amendment %s: %w", id, err)
	}
	return nil
}

// ListBookings fetches the caller's bookings, either as driver or passenger.
func (c *Client) ListBookings(ctx context.Context, driverView bool) ([]*Booking, error) {
	path := "/bookings?as_driver=false"
	if driverView {
		path = "/bookings?as_driver=true"
	}
	var out []*Booking
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

// CreateBooking persists a new booking and returns it with its assigned id.
func (c *Client) CreateBooking(ctx context.Context, b *Booking) (*Booking, error) {
	var out Booking
	if err := c.do(ctx, http.MethodPost, "/bookings", b, &out); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return &out, nil
}

// CancelBooking cancels a booking outright, outside the amendment workflow.
func (c *Client) CancelBooking(ctx context.Context, id string) error {
	path := "/bookings/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("cancel booking %s: %w", id, err)
	}
	return nil
}

// Balance returns the caller's payment balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var out struct {
		Balance float64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &out); err != nil {
		return 0, fmt.Errorf("balance: %w", err)
	}
	return out.Balance, nil
}

// CurrentUserID resolves the authenticated user id behind the token.
func (c *Client) CurrentUserID(ctx context.Context) (string, error) {
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}
	return out.UserID, nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("booking service error",
			"method", method,
			"path", path,
			"status", resp.StatusCode)
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
