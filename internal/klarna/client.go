// Package klarna is the HTTP client for Klarna's payments session API.
// It owns serialization, request shaping, and error mapping for the
// create and update session calls. The client performs no retries: a
// failed call surfaces immediately and retry policy belongs to the
// caller.
package klarna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yourorg/klarna-payments-gateway/internal/config"
	"github.com/yourorg/klarna-payments-gateway/internal/session"
)

const (
	playgroundAPIBaseURL = "https://api.playground.klarna.com"
	productionAPIBaseURL = "https://api.klarna.com"

	sessionsPath = "/payments/v1/sessions"
)

// OrderLine is one cart line in a session request. Amounts are in
// minor units.
type OrderLine struct {
	Type           string `json:"type,omitempty"`
	Reference      string `json:"reference,omitempty"`
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPrice      int64  `json:"unit_price"`
	TaxRate        int64  `json:"tax_rate"`
	TotalAmount    int64  `json:"total_amount"`
	TotalTaxAmount int64  `json:"total_tax_amount"`
}

// SessionRequest is the JSON body for both the create and update
// session calls. The optional Options object is injected by the style
// transform, not set directly.
type SessionRequest struct {
	PurchaseCountry  string      `json:"purchase_country"`
	PurchaseCurrency string      `json:"purchase_currency"`
	Locale           string      `json:"locale,omitempty"`
	OrderAmount      int64       `json:"order_amount"`
	OrderTaxAmount   int64       `json:"order_tax_amount"`
	OrderLines       []OrderLine `json:"order_lines"`
	MerchantReference string     `json:"merchant_reference1,omitempty"`
}

// Transform mutates the JSON request body before it is sent. Transforms
// registered on the client run in registration order; create and update
// carry independent lists.
type Transform func(body map[string]interface{})

// StyleTransform returns a Transform that merges the configured iframe
// display options into the body's "options" object without overwriting
// unrelated fields. A fully empty StyleOptions yields a no-op.
func StyleTransform(style config.StyleOptions) Transform {
	return func(body map[string]interface{}) {
		options := style.Options()
		if options == nil {
			return
		}
		existing, _ := body["options"].(map[string]interface{})
		if existing == nil {
			existing = make(map[string]interface{})
		}
		for k, v := range options {
			existing[k] = v
		}
		body["options"] = existing
	}
}

// Client talks to the Klarna payments session API for one merchant.
type Client struct {
	httpClient   *http.Client
	apiBaseURL   string // overridable for tests
	merchantID   string
	sharedSecret string

	createTransforms []Transform
	updateTransforms []Transform
}

// NewClient creates a Client for the merchant in cfg. A nil httpClient
// gets a default with a 10s timeout; the environment picks the
// playground or production base URL.
func NewClient(cfg config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := playgroundAPIBaseURL
	if cfg.Environment == config.EnvironmentProduction {
		baseURL = productionAPIBaseURL
	}
	return &Client{
		httpClient:   httpClient,
		apiBaseURL:   baseURL,
		merchantID:   cfg.MerchantID,
		sharedSecret: cfg.SharedSecret,
	}
}

// SetBaseURL overrides the API base URL. Intended for tests.
func (c *Client) SetBaseURL(u string) { c.apiBaseURL = u }

// AddCreateTransform appends a body transform for create session calls.
func (c *Client) AddCreateTransform(t Transform) {
	c.createTransforms = append(c.createTransforms, t)
}

// AddUpdateTransform appends a body transform for update session calls.
func (c *Client) AddUpdateTransform(t Transform) {
	c.updateTransforms = append(c.updateTransforms, t)
}

// shapeBody marshals req, applies the transforms in order, and returns
// the final JSON bytes.
func shapeBody(req SessionRequest, transforms []Transform) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("klarna: failed to marshal session request: %w", err)
	}
	if len(transforms) == 0 {
		return raw, nil
	}
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("klarna: failed to decode session request for shaping: %w", err)
	}
	for _, t := range transforms {
		t(body)
	}
	shaped, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("klarna: failed to re-encode shaped session request: %w", err)
	}
	return shaped, nil
}

func (c *Client) post(ctx context.Context, op, url string, body []byte) (*http.Response, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, &TransportError{Op: op, Err: err}
	}
	httpReq.SetBasicAuth(c.merchantID, c.sharedSecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Klarna-Correlation-Id", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("Klarna: %s transport failure: %v", op, err)
		return nil, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &TransportError{Op: op, Err: fmt.Errorf("reading response body: %w", err)}
	}

	// Log the request/response pair for auditability.
	log.Printf("Klarna: %s request: %s response: HTTP %d %s", op, string(body), resp.StatusCode, string(respBody))

	return resp, respBody, nil
}

// CreateSession creates a new payment session. Success is exactly
// HTTP 200 with a JSON body carrying session_id and client_token. Any
// other status yields an *APIError; no response at all yields a
// *TransportError.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (session.Session, error) {
	tracer := otel.Tracer("klarna")
	ctx, span := tracer.Start(ctx, "Client.CreateSession")
	defer span.End()

	const op = "create session"
	body, err := shapeBody(req, c.createTransforms)
	if err != nil {
		return session.Session{}, err
	}

	resp, respBody, err := c.post(ctx, op, c.apiBaseURL+sessionsPath, body)
	if err != nil {
		return session.Session{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return session.Session{}, &APIError{Op: op, StatusCode: resp.StatusCode, Body: respBody}
	}

	var s session.Session
	if err := json.Unmarshal(respBody, &s); err != nil {
		return session.Session{}, &TransportError{Op: op, Err: fmt.Errorf("decoding session response: %w", err)}
	}
	s.Country = req.PurchaseCountry
	return s, nil
}

// UpdateSession updates an existing session after a cart change.
// Success is exactly HTTP 204 with no body. Same error taxonomy as
// CreateSession.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, req SessionRequest) error {
	tracer := otel.Tracer("klarna")
	ctx, span := tracer.Start(ctx, "Client.UpdateSession")
	defer span.End()

	const op = "update session"
	if sessionID == "" {
		return fmt.Errorf("klarna: session id is required for %s", op)
	}
	body, err := shapeBody(req, c.updateTransforms)
	if err != nil {
		return err
	}

	resp, respBody, err := c.post(ctx, op, c.apiBaseURL+sessionsPath+"/"+sessionID, body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: respBody}
	}
	return nil
}
