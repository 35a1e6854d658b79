// Package gateway ties the Klarna Payments core together: it gates
// session calls on the currency/country validator, drives the session
// client, hands authorization results to the order state driver, and
// reports the payment method's availability.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/klarna-payments-gateway/internal/classifier"
	"github.com/yourorg/klarna-payments-gateway/internal/config"
	"github.com/yourorg/klarna-payments-gateway/internal/events"
	"github.com/yourorg/klarna-payments-gateway/internal/health"
	"github.com/yourorg/klarna-payments-gateway/internal/klarna"
	"github.com/yourorg/klarna-payments-gateway/internal/metrics"
	"github.com/yourorg/klarna-payments-gateway/internal/orderstate"
	"github.com/yourorg/klarna-payments-gateway/internal/reporting"
	"github.com/yourorg/klarna-payments-gateway/internal/request"
	"github.com/yourorg/klarna-payments-gateway/internal/session"
	"github.com/yourorg/klarna-payments-gateway/internal/validator"
)

// Breaker operation names for the two session calls.
const (
	OpCreateSession = "create_session"
	OpUpdateSession = "update_session"
)

// ErrUnavailable is returned when the session API circuit is open and
// no call is attempted.
var ErrUnavailable = errors.New("gateway: Klarna session API temporarily unavailable")

// SessionAPI is the session client contract the gateway depends on.
type SessionAPI interface {
	CreateSession(ctx context.Context, req klarna.SessionRequest) (session.Session, error)
	UpdateSession(ctx context.Context, sessionID string, req klarna.SessionRequest) error
}

// RefundHandler processes a refund for an order. The gateway has no
// refund logic of its own; it defers entirely to a registered handler.
type RefundHandler func(orderID string, amount int64, reason string) (bool, error)

// Gateway is the payment gateway facade.
type Gateway struct {
	cfg     config.Config
	client  SessionAPI
	store   session.Store
	builder *request.Builder
	driver  *orderstate.Driver
	breaker *health.Breaker
	emitter events.Emitter

	metrics  *metrics.Metrics
	recorder *reporting.Recorder
	refund   RefundHandler
}

// New creates a Gateway. All arguments are required.
func New(
	cfg config.Config,
	client SessionAPI,
	store session.Store,
	builder *request.Builder,
	driver *orderstate.Driver,
	breaker *health.Breaker,
	emitter events.Emitter,
) *Gateway {
	if client == nil {
		panic("session client cannot be nil")
	}
	if store == nil {
		panic("session store cannot be nil")
	}
	if builder == nil {
		panic("request builder cannot be nil")
	}
	if driver == nil {
		panic("order state driver cannot be nil")
	}
	if breaker == nil {
		panic("health breaker cannot be nil")
	}
	if emitter == nil {
		panic("event emitter cannot be nil")
	}
	return &Gateway{
		cfg:     cfg,
		client:  client,
		store:   store,
		builder: builder,
		driver:  driver,
		breaker: breaker,
		emitter: emitter,
	}
}

// SetMetrics attaches Prometheus instrumentation.
func (g *Gateway) SetMetrics(m *metrics.Metrics) { g.metrics = m }

// SetRecorder attaches the activity recorder used for retrospectives.
func (g *Gateway) SetRecorder(r *reporting.Recorder) { g.recorder = r }

// SetRefundHandler registers the external refund handler.
func (g *Gateway) SetRefundHandler(h RefundHandler) { g.refund = h }

// IsAvailable reports whether Klarna Payments should currently offer
// itself at checkout: enabled, credentialed, a legal country/currency
// pair, and no open session-error circuit.
func (g *Gateway) IsAvailable() bool {
	if !g.cfg.Enabled {
		return false
	}
	if !g.cfg.HasCredentials() {
		return false
	}
	if err := validator.Check(g.store, g.cfg.Country, g.cfg.Currency); err != nil {
		return false
	}
	if !g.breaker.Healthy(OpCreateSession) || !g.breaker.Healthy(OpUpdateSession) {
		return false
	}
	return true
}

// CurrentSession returns the session held for the active checkout.
func (g *Gateway) CurrentSession() (session.Session, bool) {
	return g.store.Get()
}

// CreateSession creates a Klarna session for the cart and persists its
// identifiers into the session store.
func (g *Gateway) CreateSession(ctx context.Context, cart request.Cart) (session.Session, error) {
	tracer := otel.Tracer("gateway")
	ctx, span := tracer.Start(ctx, "Gateway.CreateSession")
	defer span.End()

	if err := validator.Check(g.store, g.cfg.Country, g.cfg.Currency); err != nil {
		g.countError(metrics.ErrorKindValidation)
		return session.Session{}, err
	}

	req, err := g.builder.Build(ctx, cart)
	if err != nil {
		return session.Session{}, err
	}

	if !g.breaker.Healthy(OpCreateSession) {
		return session.Session{}, ErrUnavailable
	}

	start := time.Now()
	s, err := g.client.CreateSession(ctx, req)
	g.observeDuration(start)
	if err != nil {
		g.breaker.RecordFailure(OpCreateSession)
		g.recordSessionError(err, req)
		return session.Session{}, err
	}

	g.breaker.RecordSuccess(OpCreateSession)
	if g.metrics != nil {
		g.metrics.SessionsCreated.Inc()
	}
	g.store.Set(s)
	return s, nil
}

// UpdateSession pushes the current cart state to the existing session.
// Without a stored session it falls back to creating one.
func (g *Gateway) UpdateSession(ctx context.Context, cart request.Cart) error {
	tracer := otel.Tracer("gateway")
	ctx, span := tracer.Start(ctx, "Gateway.UpdateSession")
	defer span.End()

	if err := validator.Check(g.store, g.cfg.Country, g.cfg.Currency); err != nil {
		g.countError(metrics.ErrorKindValidation)
		return err
	}

	current, ok := g.store.Get()
	if !ok {
		_, err := g.CreateSession(ctx, cart)
		return err
	}

	req, err := g.builder.Build(ctx, cart)
	if err != nil {
		return err
	}

	if !g.breaker.Healthy(OpUpdateSession) {
		return ErrUnavailable
	}

	start := time.Now()
	err = g.client.UpdateSession(ctx, current.SessionID, req)
	g.observeDuration(start)
	if err != nil {
		g.breaker.RecordFailure(OpUpdateSession)
		g.recordSessionError(err, req)
		return err
	}

	g.breaker.RecordSuccess(OpUpdateSession)
	if g.metrics != nil {
		g.metrics.SessionsUpdated.Inc()
	}
	return nil
}

// HandleAuthorization consumes one authorization result for the order:
// classify, drive the order state machine, and account for the outcome.
func (g *Gateway) HandleAuthorization(order orderstate.Order, auth classifier.AuthorizationResult) (orderstate.Result, error) {
	outcome := classifier.Classify(auth)

	result, replayed, err := g.driver.Apply(order, outcome, auth)
	if replayed {
		// The driver already no-opped; counting the replay would
		// double-book the payment in metrics and the retrospective.
		return result, err
	}

	if g.metrics != nil {
		g.metrics.Outcomes.WithLabelValues(outcome.Kind.String()).Inc()
	}
	if g.recorder != nil && outcome.Kind != classifier.OutcomeUnknown {
		g.recorder.Record(reporting.LogEntry{
			Timestamp: time.Now(),
			OrderID:   order.ID(),
			Status:    auth.FraudStatus,
			Currency:  g.cfg.Currency,
			Country:   g.cfg.Country,
		})
	}
	return result, err
}

// HandleAuthorizationFailure is the short-circuit for a failed outer
// call: no classification runs, the user sees the error, and the
// checkout re-renders. The session store is left untouched.
func (g *Gateway) HandleAuthorizationFailure(callErr error) orderstate.Result {
	log.Printf("Gateway: authorization call failed: %v", callErr)

	message := "Could not complete Klarna payment."
	var apiErr *klarna.APIError
	if errors.As(callErr, &apiErr) {
		message = fmt.Sprintf("Klarna error failed. %d - %s.", apiErr.StatusCode, string(apiErr.Body))
	} else if callErr != nil {
		message = callErr.Error()
	}

	return orderstate.Result{
		Result:         "failure",
		Message:        message,
		ReloadCheckout: true,
	}
}

// ProcessRefund defers to the registered refund handler. Without one,
// refunds are reported as not handled.
func (g *Gateway) ProcessRefund(orderID string, amount int64, reason string) (bool, error) {
	if g.refund == nil {
		log.Printf("Gateway: no refund handler registered, refusing refund for order %s", orderID)
		return false, nil
	}
	return g.refund(orderID, amount, reason)
}

// Notify relays a provider notification (e.g. a pending-order update)
// to subscribed order-management extensions.
func (g *Gateway) Notify(orderID string, payload interface{}) {
	g.emitter.Emit(events.EventNotification, orderID, payload)
}

func (g *Gateway) countError(kind string) {
	if g.metrics != nil {
		g.metrics.SessionErrors.WithLabelValues(kind).Inc()
	}
}

func (g *Gateway) observeDuration(start time.Time) {
	if g.metrics != nil {
		g.metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

func (g *Gateway) recordSessionError(err error, req klarna.SessionRequest) {
	code := "TRANSPORT"
	kind := metrics.ErrorKindTransport
	var apiErr *klarna.APIError
	if errors.As(err, &apiErr) {
		code = fmt.Sprintf("HTTP_%d", apiErr.StatusCode)
		kind = metrics.ErrorKindAPI
	}
	g.countError(kind)
	if g.recorder != nil {
		g.recorder.Record(reporting.LogEntry{
			Timestamp: time.Now(),
			Status:    reporting.StatusSessionError,
			Amount:    req.OrderAmount,
			Currency:  g.cfg.Currency,
			Country:   g.cfg.Country,
			ErrorCode: code,
		})
	}
}
