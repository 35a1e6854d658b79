package orderstate

import (
	"fmt"
	"log"
	"sync"

	"github.com/yourorg/klarna-payments-gateway/internal/classifier"
	"github.com/yourorg/klarna-payments-gateway/internal/events"
	"github.com/yourorg/klarna-payments-gateway/internal/policy"
	"github.com/yourorg/klarna-payments-gateway/internal/session"
)

// Result is the payment result handed back to the checkout flow.
type Result struct {
	Result   string `json:"result"` // "success" or "failure"
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
	// ReloadCheckout asks the caller to re-render the checkout page.
	ReloadCheckout bool `json:"reload_checkout,omitempty"`
}

// ClassificationError is raised for an Unknown outcome: the provider
// returned a fraud_status outside the documented set. It requires
// manual reconciliation and must never be treated as accepted.
type ClassificationError struct {
	OrderID     string
	FraudStatus string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("orderstate: unrecognized fraud_status %q for order %s", e.FraudStatus, e.OrderID)
}

// Customer-facing names for Klarna payment method categories, appended
// to the order's payment method title on acceptance.
var methodTitles = map[string]string{
	"invoice":      "Pay Later",
	"base_account": "Slice It",
	"direct_debit": "Direct Debit",
}

// Driver applies classified outcomes to orders. Each applied outcome
// clears the session store; that is the single destruction point for
// session data.
type Driver struct {
	store       session.Store
	emitter     events.Emitter
	review      *policy.ReviewPolicy
	environment string
	country     string
	returnURL   func(Order) string

	mu        sync.Mutex
	processed map[string]Result
}

// NewDriver creates a Driver. review may be nil to disable review
// rules; returnURL may be nil for the default order-received path.
func NewDriver(store session.Store, emitter events.Emitter, review *policy.ReviewPolicy, environment, country string) *Driver {
	if store == nil {
		panic("session store cannot be nil")
	}
	if emitter == nil {
		panic("event emitter cannot be nil")
	}
	return &Driver{
		store:       store,
		emitter:     emitter,
		review:      review,
		environment: environment,
		country:     country,
		returnURL: func(o Order) string {
			return "/checkout/order-received/" + o.ID()
		},
		processed: make(map[string]Result),
	}
}

// SetReturnURL overrides how the post-payment redirect is built.
func (d *Driver) SetReturnURL(fn func(Order) string) {
	if fn != nil {
		d.returnURL = fn
	}
}

// Apply drives the order state machine with one outcome. A replayed
// callback for an already-processed (order id, klarna order id) pair is
// a no-op returning the original result and replayed=true: no duplicate
// notes, no second status transition. The lock is held across the whole
// transition so concurrent duplicate deliveries serialize and exactly
// one applies.
func (d *Driver) Apply(order Order, outcome classifier.Outcome, auth classifier.AuthorizationResult) (result Result, replayed bool, err error) {
	if order == nil {
		return Result{Result: "failure"}, false, fmt.Errorf("orderstate: order cannot be nil")
	}

	if outcome.Kind == classifier.OutcomeUnknown {
		// Order state stays untouched; the checkout re-renders and the
		// payment needs manual reconciliation.
		return Result{
			Result:         "failure",
			Message:        fmt.Sprintf("Klarna returned an unrecognized authorization status: %q", outcome.RawFraudStatus),
			ReloadCheckout: true,
		}, false, &ClassificationError{OrderID: order.ID(), FraudStatus: outcome.RawFraudStatus}
	}

	replayKey := order.ID() + "|" + outcome.KlarnaOrderID
	d.mu.Lock()
	defer d.mu.Unlock()
	if prior, ok := d.processed[replayKey]; ok {
		log.Printf("OrderStateDriver: replayed callback for order %s (klarna order %s), returning prior result", order.ID(), outcome.KlarnaOrderID)
		return prior, true, nil
	}

	switch outcome.Kind {
	case classifier.OutcomeAccepted:
		result = d.applyAccepted(order, outcome, auth)
	case classifier.OutcomePending:
		result = d.applyPending(order, outcome, auth)
	case classifier.OutcomeRejected:
		result = d.applyRejected(order, auth)
	}

	order.SetMetadata(MetaKlarnaEnvironment, d.environment)
	order.SetMetadata(MetaKlarnaCountry, d.country)

	// Single destruction point for session data.
	d.store.Clear()

	d.processed[replayKey] = result

	return result, false, nil
}

func (d *Driver) applyAccepted(order Order, outcome classifier.Outcome, auth classifier.AuthorizationResult) Result {
	order.CompletePayment(outcome.KlarnaOrderID)
	order.AddNote("Payment via Klarna Payments, order ID: " + outcome.KlarnaOrderID)
	order.SetMetadata(MetaKlarnaOrderID, outcome.KlarnaOrderID)

	if name, ok := methodTitles[outcome.Method]; ok {
		order.SetPaymentMethodTitle(order.PaymentMethodTitle() + " - " + name)
	}

	d.emitter.Emit(events.EventAccepted, order.ID(), auth)

	return Result{Result: "success", Redirect: d.returnURL(order)}
}

func (d *Driver) applyPending(order Order, outcome classifier.Outcome, auth classifier.AuthorizationResult) Result {
	order.SetStatus(StatusOnHold, "Klarna order is under review, order ID: "+outcome.KlarnaOrderID)
	order.SetMetadata(MetaKlarnaOrderID, outcome.KlarnaOrderID)
	order.SetMetadata(MetaTransactionID, outcome.KlarnaOrderID)

	d.applyReviewDecision(order, outcome, auth)
	d.emitter.Emit(events.EventPending, order.ID(), auth)

	return Result{Result: "success", Redirect: d.returnURL(order)}
}

func (d *Driver) applyRejected(order Order, auth classifier.AuthorizationResult) Result {
	order.SetStatus(StatusOnHold, "Klarna order was rejected.")

	d.emitter.Emit(events.EventRejected, order.ID(), auth)

	return Result{
		Result:  "failure",
		Message: "Klarna payment rejected",
	}
}

// applyReviewDecision runs the merchant's review rules for a pending
// order. A rule failure is logged and ignored: review rules must never
// block the outcome transition.
func (d *Driver) applyReviewDecision(order Order, outcome classifier.Outcome, auth classifier.AuthorizationResult) {
	if d.review == nil {
		return
	}
	decision, err := d.review.Evaluate(policy.Parameters{
		FraudStatus:   outcome.RawFraudStatus,
		Country:       d.country,
		PaymentMethod: auth.AuthorizedPaymentMethod.Type,
	})
	if err != nil {
		log.Printf("OrderStateDriver: review policy error for order %s: %v", order.ID(), err)
		return
	}
	if decision.Note != "" {
		order.AddNote(decision.Note)
	}
	if decision.EscalateManual {
		d.emitter.Emit(events.EventNotification, order.ID(), auth)
	}
}
