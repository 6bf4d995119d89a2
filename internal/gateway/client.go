package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bookstay/payments-backend/internal/money"
	"go.uber.org/zap"
)

const (
	// tokenBuffer is subtracted from the provider expiry so a token is
	// refreshed before it can expire mid-request.
	tokenBuffer = 60 * time.Second

	// ipnMaxTTL caps how long a notification-channel registration is
	// reused even if the provider reports a longer expiry.
	ipnMaxTTL = 24 * time.Hour
)

type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	WebhookSecret  string
	IPNURL         string // callback URL registered with the provider
	CallbackURL    string // browser redirect after hosted checkout
	Timeout        time.Duration
}

// call is a single in-flight token or IPN request shared by concurrent
// callers. The slot owning it is cleared before done is closed, so a
// failed attempt never blocks the next one.
type call struct {
	done chan struct{}
	val  string
	err  error
}

// Client talks to the external payment gateway. Token and
// notification-channel registrations are cached process-wide; both
// caches are refreshed via a single-flight mutex + shared call.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *zap.Logger
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	tokenCall   *call
	ipnID       string
	ipnExpiry   time.Time
	ipnCall     *call
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		now:        time.Now,
	}
}

// GetAccessToken returns the cached bearer token, refreshing it when it
// is within tokenBuffer of expiry. Concurrent refreshes collapse into
// one provider call.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenBuffer)) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	if c.tokenCall != nil {
		inflight := c.tokenCall
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.val, inflight.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	inflight := &call{done: make(chan struct{})}
	c.tokenCall = inflight
	c.mu.Unlock()

	token, expiry, err := c.requestToken(ctx)

	c.mu.Lock()
	if err == nil {
		c.token = token
		c.tokenExpiry = expiry
	}
	c.tokenCall = nil
	c.mu.Unlock()

	inflight.val, inflight.err = token, err
	close(inflight.done)
	return token, err
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

type tokenWire struct {
	Token      string        `json:"token"`
	ExpiryDate string        `json:"expiryDate"`
	Error      *providerFail `json:"error"`
}

func (c *Client) requestToken(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"consumer_key":    c.cfg.ConsumerKey,
		"consumer_secret": c.cfg.ConsumerSecret,
	}
	var out tokenWire
	if err := c.post(ctx, "/api/Auth/RequestToken", "", body, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.Error != nil || out.Token == "" {
		return "", time.Time{}, &AuthError{Message: out.Error.message()}
	}
	expiry, err := time.Parse(time.RFC3339, out.ExpiryDate)
	if err != nil {
		// Provider omitted or mangled the expiry; assume the documented 5 minutes.
		expiry = c.now().Add(5 * time.Minute)
	}
	return out.Token, expiry, nil
}

// getNotificationID returns the registered IPN channel id, registering
// a fresh one when the cached registration is older than ipnMaxTTL.
// Registration uses the same single-flight shape as the token cache.
func (c *Client) getNotificationID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.ipnID != "" && c.now().Before(c.ipnExpiry) {
		id := c.ipnID
		c.mu.Unlock()
		return id, nil
	}
	if c.ipnCall != nil {
		inflight := c.ipnCall
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.val, inflight.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	inflight := &call{done: make(chan struct{})}
	c.ipnCall = inflight
	c.mu.Unlock()

	id, expiry, err := c.registerIPN(ctx)

	c.mu.Lock()
	if err == nil {
		c.ipnID = id
		c.ipnExpiry = expiry
	}
	c.ipnCall = nil
	c.mu.Unlock()

	inflight.val, inflight.err = id, err
	close(inflight.done)
	return id, err
}

type ipnWire struct {
	IPNID      string        `json:"ipn_id"`
	URL        string        `json:"url"`
	ExpiryDate string        `json:"expiry_date"`
	Error      *providerFail `json:"error"`
}

func (c *Client) registerIPN(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"url":                   c.cfg.IPNURL,
		"ipn_notification_type": "POST",
	}
	var out ipnWire
	if err := c.doAuthed(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", body, &out); err != nil {
		return "", time.Time{}, err
	}
	if out.Error != nil || out.IPNID == "" {
		return "", time.Time{}, &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}

	expiry := c.now().Add(ipnMaxTTL)
	if out.ExpiryDate != "" {
		if provided, err := time.Parse(time.RFC3339, out.ExpiryDate); err == nil && provided.Before(expiry) {
			expiry = provided
		}
	}
	c.log.Info("gateway ipn registered", zap.String("ipn_id", out.IPNID))
	return out.IPNID, expiry, nil
}

type checkoutWire struct {
	OrderTrackingID   string        `json:"order_tracking_id"`
	MerchantReference string        `json:"merchant_reference"`
	RedirectURL       string        `json:"redirect_url"`
	Error             *providerFail `json:"error"`
}

// CreateCheckout submits a hosted-checkout order and returns the
// provider tracking id plus the URL the guest is redirected to.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	notificationID, err := c.getNotificationID(ctx)
	if err != nil {
		return nil, fmt.Errorf("notification channel: %w", err)
	}

	body := map[string]any{
		"id":              req.Reference,
		"currency":        req.Currency,
		"amount":          req.Amount.String(),
		"description":     req.Description,
		"callback_url":    c.cfg.CallbackURL,
		"notification_id": notificationID,
		"billing_address": req.Billing,
	}
	var out checkoutWire
	if err := c.doAuthed(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", body, &out); err != nil {
		return nil, err
	}
	if out.Error != nil || out.OrderTrackingID == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}
	return &CheckoutResponse{TrackingID: out.OrderTrackingID, RedirectURL: out.RedirectURL}, nil
}

type txStatusWire struct {
	OrderTrackingID   string        `json:"order_tracking_id"`
	MerchantReference string        `json:"merchant_reference"`
	StatusDescription string        `json:"payment_status_description"`
	PaymentMethod     string        `json:"payment_method"`
	ConfirmationCode  string        `json:"confirmation_code"`
	Amount            json.Number   `json:"amount"`
	Currency          string        `json:"currency"`
	Error             *providerFail `json:"error"`
}

// GetTransactionStatus is the canonical status lookup. Webhook payloads
// only carry the tracking id; status and amount always come from here.
func (c *Client) GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error) {
	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	var out txStatusWire
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}

	amount, err := money.Parse(out.Amount.String())
	if err != nil {
		amount = 0
	}
	return &TransactionStatus{
		TrackingID:        out.OrderTrackingID,
		MerchantReference: out.MerchantReference,
		Status:            strings.ToUpper(out.StatusDescription),
		PaymentMethod:     out.PaymentMethod,
		ConfirmationCode:  out.ConfirmationCode,
		Amount:            amount,
		Currency:          out.Currency,
	}, nil
}

type payoutWire struct {
	PayoutID string        `json:"payout_id"`
	Status   string        `json:"status"`
	Reason   string        `json:"reason"`
	Error    *providerFail `json:"error"`
}

func (c *Client) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	body := map[string]any{
		"reference":      req.Reference,
		"amount":         req.Amount.String(),
		"currency":       req.Currency,
		"narration":      req.Narration,
		"phone_number":   req.PhoneNumber,
		"bank_code":      req.BankCode,
		"account_number": req.AccountNumber,
		"account_name":   req.AccountName,
	}
	var out payoutWire
	if err := c.doAuthed(ctx, http.MethodPost, "/api/Payouts/SubmitPayoutRequest", body, &out); err != nil {
		return nil, err
	}
	if out.Error != nil || out.PayoutID == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}
	return &PayoutResponse{PayoutID: out.PayoutID, Status: strings.ToUpper(out.Status)}, nil
}

func (c *Client) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutStatusResponse, error) {
	path := "/api/Payouts/GetPayoutStatus?payoutId=" + url.QueryEscape(payoutID)
	var out payoutWire
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}
	return &PayoutStatusResponse{PayoutID: out.PayoutID, Status: strings.ToUpper(out.Status), Reason: out.Reason}, nil
}

type refundWire struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Error   *providerFail `json:"error"`
}

func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) error {
	body := map[string]any{
		"order_tracking_id": req.TrackingID,
		"remarks":           req.Remarks,
	}
	if req.Amount != nil {
		body["amount"] = req.Amount.String()
	}
	var out refundWire
	if err := c.doAuthed(ctx, http.MethodPost, "/api/Transactions/RefundRequest", body, &out); err != nil {
		return err
	}
	if out.Error != nil {
		return &APIError{HTTPStatus: http.StatusOK, Code: out.Error.code(), Message: out.Error.message()}
	}
	return nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex signature of a raw
// webhook payload in constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

// doAuthed performs an authenticated request. On a 401 the token cache
// is invalidated and exactly one re-fetch + retry happens before the
// error surfaces.
func (c *Client) doAuthed(ctx context.Context, method, path string, body, out any) error {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	status, err := c.do(ctx, method, path, token, body, out)
	if status == http.StatusUnauthorized {
		c.invalidateToken()
		token, err = c.GetAccessToken(ctx)
		if err != nil {
			return err
		}
		status, err = c.do(ctx, method, path, token, body, out)
		if status == http.StatusUnauthorized {
			return &AuthError{Message: "token rejected after refresh"}
		}
	}
	return err
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	_, err := c.do(ctx, http.MethodPost, path, token, body, out)
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("gateway read: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, &AuthError{Message: "unauthorized"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error *providerFail `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		c.log.Warn("gateway error response",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
			zap.ByteString("body", raw),
		)
		return resp.StatusCode, &APIError{HTTPStatus: resp.StatusCode, Code: envelope.Error.code(), Message: envelope.Error.message()}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("gateway decode: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type providerFail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *providerFail) code() string {
	if f == nil {
		return ""
	}
	return f.Code
}

func (f *providerFail) message() string {
	if f == nil {
		return "provider rejected request"
	}
	return f.Message
}
