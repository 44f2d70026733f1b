package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwellhq/counseling-scheduler/internal/booking"
)

func linkRequest() booking.PaymentLinkRequest {
	return booking.PaymentLinkRequest{
		OrderCode:   123456,
		Amount:      50000,
		Description: "Counseling session with Dr. Chen",
		ExpiredAt:   time.Now().Add(10 * time.Minute),
	}
}

func TestCreatePaymentLink(t *testing.T) {
	var gotBody map[string]any
	var gotAPIKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment-links", r.URL.Path)
		gotAPIKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"orderCode":   123456,
			"checkoutUrl": "https://pay.example/checkout/123456",
			"status":      "Pending",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key", 2*time.Second)

	link, err := client.CreatePaymentLink(context.Background(), linkRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(123456), link.OrderCode)
	assert.Equal(t, "https://pay.example/checkout/123456", link.CheckoutURL)
	assert.Equal(t, booking.PaymentPending, link.Status)

	assert.Equal(t, "secret-key", gotAPIKey)
	assert.Equal(t, float64(123456), gotBody["orderCode"])
	assert.Equal(t, float64(50000), gotBody["amount"])
	assert.NotZero(t, gotBody["expiredAt"])
}

func TestCreatePaymentLinkRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"amount below minimum"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2*time.Second)

	_, err := client.CreatePaymentLink(context.Background(), linkRequest())
	assert.ErrorIs(t, err, ErrRequestRejected)
}

func TestCreatePaymentLinkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2*time.Second)

	_, err := client.CreatePaymentLink(context.Background(), linkRequest())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCreatePaymentLinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "", 500*time.Millisecond)

	_, err := client.CreatePaymentLink(context.Background(), linkRequest())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCreatePaymentLinkMissingCheckoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"orderCode": 1, "status": "Pending"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2*time.Second)

	_, err := client.CreatePaymentLink(context.Background(), linkRequest())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestCreatePaymentLinkMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 2*time.Second)

	_, err := client.CreatePaymentLink(context.Background(), linkRequest())
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
