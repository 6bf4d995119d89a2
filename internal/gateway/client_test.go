package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "test-key",
		ConsumerSecret: "test-secret",
		WebhookSecret:  "hook-secret",
		IPNURL:         "https://example.com/webhooks/gateway",
		CallbackURL:    "https://example.com/checkout/done",
	}, zap.NewNop())
	return client, srv
}

func tokenHandler(calls *int64, expiry time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      fmt.Sprintf("tok-%d", n),
			"expiryDate": expiry.Format(time.RFC3339),
		})
	}
}

func TestGetAccessTokenCaching(t *testing.T) {
	var calls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&calls, time.Now().Add(time.Hour)))

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	first, err := client.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	second, err := client.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}

	if first != second {
		t.Errorf("expected cached token, got %q then %q", first, second)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected 1 token request, got %d", got)
	}
}

func TestGetAccessTokenRefreshesNearExpiry(t *testing.T) {
	var calls int64
	mux := http.NewServeMux()
	// Expiry inside the refresh buffer: every call must hit the provider.
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&calls, time.Now().Add(30*time.Second)))

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	if _, err := client.GetAccessToken(ctx); err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if _, err := client.GetAccessToken(ctx); err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("expected 2 token requests for near-expired token, got %d", got)
	}
}

func TestGetAccessTokenSingleFlight(t *testing.T) {
	var calls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(50 * time.Millisecond) // hold concurrent callers on the shared call
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-shared",
			"expiryDate": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := client.GetAccessToken(ctx)
			if err != nil {
				t.Errorf("GetAccessToken: %v", err)
			}
			if token != "tok-shared" {
				t.Errorf("unexpected token %q", token)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected 1 token request across concurrent callers, got %d", got)
	}
}

func TestNotificationIDSingleFlight(t *testing.T) {
	var tokenCalls, ipnCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&tokenCalls, time.Now().Add(time.Hour)))
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&ipnCalls, 1)
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{"ipn_id": "ipn-1"})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := client.getNotificationID(ctx)
			if err != nil {
				t.Errorf("getNotificationID: %v", err)
			}
			if id != "ipn-1" {
				t.Errorf("unexpected ipn id %q", id)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&ipnCalls); got != 1 {
		t.Errorf("expected 1 IPN registration across concurrent callers, got %d", got)
	}
}

func TestNotificationIDFailureClearsInflight(t *testing.T) {
	var tokenCalls, ipnCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&tokenCalls, time.Now().Add(time.Hour)))
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&ipnCalls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "server_error", "message": "boom"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ipn_id": "ipn-2"})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	if _, err := client.getNotificationID(ctx); err == nil {
		t.Fatal("expected first registration to fail")
	}
	id, err := client.getNotificationID(ctx)
	if err != nil {
		t.Fatalf("second registration should succeed after failure: %v", err)
	}
	if id != "ipn-2" {
		t.Errorf("unexpected ipn id %q", id)
	}
}

func TestDoAuthedRetriesOnceOn401(t *testing.T) {
	var tokenCalls, statusCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&tokenCalls, time.Now().Add(time.Hour)))
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		// First token is rejected; the refreshed one is accepted.
		if atomic.AddInt64(&statusCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_tracking_id":          "track-1",
			"payment_status_description": "Completed",
			"amount":                     "100.00",
			"currency":                   "KES",
		})
	})

	client, _ := newTestClient(t, mux)
	status, err := client.GetTransactionStatus(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("GetTransactionStatus: %v", err)
	}
	if status.Status != ProviderStatusCompleted {
		t.Errorf("status = %q, want %q", status.Status, ProviderStatusCompleted)
	}
	if got := atomic.LoadInt64(&tokenCalls); got != 2 {
		t.Errorf("expected refreshed token (2 token requests), got %d", got)
	}
	if got := atomic.LoadInt64(&statusCalls); got != 2 {
		t.Errorf("expected exactly one retry, got %d calls", got)
	}
}

func TestDoAuthedSurfacesPersistent401(t *testing.T) {
	var tokenCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&tokenCalls, time.Now().Add(time.Hour)))
	mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.GetTransactionStatus(context.Background(), "track-1")
	if err == nil {
		t.Fatal("expected auth error")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("expected *AuthError, got %T: %v", err, err)
	}
}

func TestCreateCheckoutAttachesNotificationID(t *testing.T) {
	var tokenCalls int64
	var gotNotificationID string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", tokenHandler(&tokenCalls, time.Now().Add(time.Hour)))
	mux.HandleFunc("/api/URLSetup/RegisterIPN", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ipn_id": "ipn-9"})
	})
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotNotificationID, _ = body["notification_id"].(string)
		if amt, _ := body["amount"].(string); amt != "10000.00" {
			t.Errorf("amount serialized as %q, want %q", amt, "10000.00")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order_tracking_id": "track-7",
			"redirect_url":      "https://pay.example.com/track-7",
		})
	})

	client, _ := newTestClient(t, mux)
	resp, err := client.CreateCheckout(context.Background(), CheckoutRequest{
		Reference: "ref-1",
		Amount:    1_000_000,
		Currency:  "KES",
	})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if resp.TrackingID != "track-7" {
		t.Errorf("tracking id = %q", resp.TrackingID)
	}
	if gotNotificationID != "ipn-9" {
		t.Errorf("notification_id = %q, want ipn-9", gotNotificationID)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	payload := []byte(`{"trackingId":"track-1"}`)

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifyWebhookSignature(payload, valid) {
		t.Error("valid signature rejected")
	}
	if !client.VerifyWebhookSignature(payload, "sha256="+valid) {
		t.Error("prefixed signature rejected")
	}
	if client.VerifyWebhookSignature(payload, "deadbeef") {
		t.Error("invalid signature accepted")
	}
	if client.VerifyWebhookSignature([]byte(`tampered`), valid) {
		t.Error("tampered payload accepted")
	}
}
