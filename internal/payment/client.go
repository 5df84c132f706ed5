package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to the payment provider's REST API.  Every request body
// is signed with HMAC-SHA256 over the raw bytes and sent in the
// X-Signature header; the provider signs callback bodies the same way,
// which VerifyCallbackSignature checks.  An access token is fetched on
// demand and refreshed by a background loop started via
// StartTokenRefresh.
type Client struct {
	baseURL  string
	clientID string
	secret   string

	http *http.Client
	brk  *breaker

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

// NewClient builds a gateway client.  The request timeout bounds every
// call; the breaker opens after repeated transport failures.
func NewClient(baseURL, clientID, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
		brk:      newBreaker(5, 30*time.Second),
	}
}

// sign computes the hex HMAC-SHA256 of body under the shared secret.
func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackSignature reports whether sig is the valid signature of
// a callback body.  Comparison is constant time.
func (c *Client) VerifyCallbackSignature(body []byte, sig string) bool {
	return hmac.Equal([]byte(c.sign(body)), []byte(sig))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchToken obtains a fresh access token from the provider.
func (c *Client) fetchToken(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.secret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token endpoint returned %d", ErrUnavailable, resp.StatusCode)
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: decode token: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	c.accessToken = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

// token returns a valid access token, fetching one when the cached token
// is missing or within a minute of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok, exp := c.accessToken, c.expiresAt
	c.mu.RUnlock()
	if tok != "" && time.Until(exp) > time.Minute {
		return tok, nil
	}
	if err := c.fetchToken(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, nil
}

// StartTokenRefresh keeps the access token warm in the background so
// request paths rarely pay the token round trip.  Returns when ctx is
// done.
func (c *Client) StartTokenRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.fetchToken(ctx); err != nil {
				log.Printf("payment: token refresh failed: %v", err)
			}
		}
	}
}

// call performs one signed, authenticated API request and decodes the
// JSON response into out.  Transport failures and 5xx responses trip the
// breaker and come back as ErrUnavailable.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	if !c.brk.allow() {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	tok, err := c.token(ctx)
	if err != nil {
		c.brk.failure()
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Client-Id", c.clientID)
	req.Header.Set("X-Signature", c.sign(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		c.brk.failure()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.brk.failure()
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.brk.failure()
		return fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	}
	c.brk.success()
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("payment: gateway rejected request: %s", apiErr.Message)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("payment: decode response: %w", err)
		}
	}
	return nil
}

type chargeRequest struct {
	ReferenceID string          `json:"reference_id"`
	BuyerID     string          `json:"buyer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	PaymentURL    string `json:"payment_url"`
}

// InitiateCharge implements Gateway.
func (c *Client) InitiateCharge(ctx context.Context, ch Charge) (*ChargeResult, error) {
	var resp chargeResponse
	err := c.call(ctx, http.MethodPost, "/api/v1/charges", chargeRequest{
		ReferenceID: ch.BookingID,
		BuyerID:     ch.BuyerID,
		Amount:      ch.Amount,
		Currency:    ch.Currency,
		Description: ch.Description,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		TransactionID: resp.TransactionID,
		Status:        resp.Status,
		PaymentURL:    resp.PaymentURL,
	}, nil
}

type transactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	SettledAt     time.Time       `json:"settled_at"`
}

// QueryStatus implements Gateway.
func (c *Client) QueryStatus(ctx context.Context, transactionID string) (*Result, error) {
	var resp transactionResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/charges/"+transactionID, nil, &resp); err != nil {
		return nil, err
	}
	return &Result{
		TransactionID: resp.TransactionID,
		Status:        resp.Status,
		Amount:        resp.Amount,
		SettledAt:     resp.SettledAt,
	}, nil
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Refund implements Gateway.
func (c *Client) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (*Result, error) {
	var resp transactionResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/charges/"+transactionID+"/refund", refundRequest{Amount: amount}, &resp); err != nil {
		return nil, err
	}
	return &Result{
		TransactionID: resp.TransactionID,
		Status:        resp.Status,
		Amount:        resp.Amount,
		SettledAt:     resp.SettledAt,
	}, nil
}
