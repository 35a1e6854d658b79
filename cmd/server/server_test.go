package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/klarna-payments-gateway/internal/config"
	"github.com/yourorg/klarna-payments-gateway/internal/orderstate"
)

func testConfig() config.Config {
	return config.Config{
		Enabled:      true,
		Title:        "Klarna Payments",
		MerchantID:   "merchant-1",
		SharedSecret: "secret",
		Environment:  config.EnvironmentPlayground,
		Country:      "SE",
		Currency:     "SEK",
		Locale:       "sv-se",
	}
}

// newTestServer wires a full server against a stubbed Klarna backend.
func newTestServer(t *testing.T, klarnaHandler http.HandlerFunc) (*server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := httptest.NewServer(klarnaHandler)
	t.Cleanup(backend.Close)

	srv, err := newServer(testConfig())
	require.NoError(t, err)
	srv.client.SetBaseURL(backend.URL)
	return srv, srv.routes()
}

// klarnaOK answers create with a fresh session and update with 204.
func klarnaOK(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/payments/v1/sessions/") {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"session_id":"sess-1","client_token":"tok-1"}`))
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sessionBody() map[string]interface{} {
	return map[string]interface{}{
		"order_lines": []map[string]interface{}{
			{"reference": "sku-1", "name": "Hoodie", "quantity": 1, "unit_price": 25000, "tax_rate": 2500},
		},
	}
}

func authorizationBody(orderID, fraudStatus string) map[string]interface{} {
	return map[string]interface{}{
		"order_id": orderID,
		"authorization": map[string]interface{}{
			"fraud_status": fraudStatus,
			"order_id":     "ko-1",
			"authorized_payment_method": map[string]interface{}{
				"type": "invoice",
			},
		},
	}
}

func TestAvailability(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := getJSON(t, router, "/availability")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["available"])
	assert.Equal(t, "Klarna Payments", resp["title"])
}

func TestCheckoutSession_CreatesSession(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/checkout/session", sessionBody())
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp["session_id"])
	assert.Equal(t, "tok-1", resp["client_token"])
}

func TestCheckoutSession_SecondCallUpdates(t *testing.T) {
	var updateCalls int
	_, router := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/payments/v1/sessions/") {
			updateCalls++
			assert.Equal(t, "/payments/v1/sessions/sess-1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"sess-1","client_token":"tok-1"}`))
	})

	w := postJSON(t, router, "/checkout/session", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/checkout/session", sessionBody())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, updateCalls)
}

func TestCheckoutSession_ProviderError(t *testing.T) {
	_, router := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"timeout"}`))
	})

	w := postJSON(t, router, "/checkout/session", sessionBody())
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var result orderstate.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "failure", result.Result)
	assert.True(t, result.ReloadCheckout)
	assert.Contains(t, result.Message, "503")
	assert.Contains(t, result.Message, `{"error":"timeout"}`)
}

func TestCheckoutSession_TransportError(t *testing.T) {
	srv, router := newTestServer(t, klarnaOK)
	srv.client.SetBaseURL("http://127.0.0.1:0")

	w := postJSON(t, router, "/checkout/session", sessionBody())
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var result orderstate.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "failure", result.Result)
	assert.True(t, result.ReloadCheckout)
	assert.Contains(t, result.Message, "could not create session")
}

func TestCheckoutSession_InvalidJSON(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	req, err := http.NewRequest(http.MethodPost, "/checkout/session", bytes.NewBufferString("this is not json"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorization_Accepted(t *testing.T) {
	srv, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/checkout/session", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, router, "/checkout/authorization", authorizationBody("order-1", "ACCEPTED"))
	assert.Equal(t, http.StatusOK, w.Code)

	var result orderstate.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Result)
	assert.Equal(t, "/checkout/order-received/order-1", result.Redirect)

	order := srv.orders.lookup("order-1")
	assert.Equal(t, orderstate.StatusProcessing, order.Status())
	assert.Equal(t, "ko-1", order.Metadata(orderstate.MetaKlarnaOrderID))
}

func TestAuthorization_SchemaViolation(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	body := map[string]interface{}{
		"order_id": "order-1",
		"authorization": map[string]interface{}{
			"order_id": "ko-1", // fraud_status missing
		},
	}
	w := postJSON(t, router, "/checkout/authorization", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "Validation errors")
	assert.Contains(t, resp["error"], "fraud_status")
}

func TestAuthorization_MissingOrderID(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	body := authorizationBody("", "ACCEPTED")
	w := postJSON(t, router, "/checkout/authorization", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "order_id is required")
}

func TestAuthorization_UnknownFraudStatus(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/checkout/authorization", authorizationBody("order-1", "SOMETHING_NEW"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var result orderstate.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "failure", result.Result)
	assert.True(t, result.ReloadCheckout)
}

func TestRefund_NoHandlerRegistered(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/orders/order-1/refund", map[string]interface{}{"amount": 1000, "reason": "damaged"})
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRefund_DelegatesToHandler(t *testing.T) {
	srv, router := newTestServer(t, klarnaOK)
	var gotOrderID string
	srv.gateway.SetRefundHandler(func(orderID string, amount int64, reason string) (bool, error) {
		gotOrderID = orderID
		return true, nil
	})

	w := postJSON(t, router, "/orders/order-1/refund", map[string]interface{}{"amount": 1000, "reason": "damaged"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order-1", gotOrderID)
}

func TestNotification(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/notifications/order-1", map[string]interface{}{"event_type": "FRAUD_RISK_ACCEPTED"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRetrospective(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/checkout/session", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)
	w = postJSON(t, router, "/checkout/authorization", authorizationBody("order-1", "ACCEPTED"))
	require.Equal(t, http.StatusOK, w.Code)

	w = getJSON(t, router, "/retrospective")
	assert.Equal(t, http.StatusOK, w.Code)

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, float64(1), report["TotalEntries"])
	assert.Equal(t, float64(1), report["AcceptedPayments"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestServer(t, klarnaOK)

	w := postJSON(t, router, "/checkout/session", sessionBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = getJSON(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "klarna_sessions_created_total 1")
}
