// Package payment talks to the external payment-link provider. The
// provider turns an order code, amount and expiry into a hosted checkout
// URL; nothing here verifies whether the link is ever paid.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mindwellhq/counseling-scheduler/internal/booking"
)

var (
	// ErrProviderUnavailable is returned when the provider cannot be
	// reached or answers with a server error.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrRequestRejected is returned when the provider rejects the
	// payment-link request itself.
	ErrRequestRejected = errors.New("payment provider rejected request")

	// ErrInvalidResponse is returned when the provider answers with a
	// body the client cannot interpret.
	ErrInvalidResponse = errors.New("payment provider returned invalid response")
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createLinkRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ExpiredAt   int64  `json:"expiredAt"`
}

type createLinkResponse struct {
	OrderCode   int64  `json:"orderCode"`
	CheckoutURL string `json:"checkoutUrl"`
	Status      string `json:"status"`
}

// CreatePaymentLink requests a hosted checkout link for a booking.
func (c *Client) CreatePaymentLink(ctx context.Context, req booking.PaymentLinkRequest) (*booking.PaymentLink, error) {
	body, err := json.Marshal(createLinkRequest{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: req.Description,
		ExpiredAt:   req.ExpiredAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrProviderUnavailable, err)
	}

	url := c.baseURL + "/v1/payment-links"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// fall through to decoding
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestRejected, resp.StatusCode, string(detail))
	default:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var decoded createLinkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if decoded.CheckoutURL == "" {
		return nil, fmt.Errorf("%w: missing checkout url", ErrInvalidResponse)
	}

	return &booking.PaymentLink{
		OrderCode:   decoded.OrderCode,
		CheckoutURL: decoded.CheckoutURL,
		Status:      booking.PaymentStatus(decoded.Status),
	}, nil
}
