// Package classifier interprets Klarna's authorization response.
// It normalizes the provider's fraud_status verdict into an Outcome
// the order state driver can act on. Classification is pure: it never
// touches the order, the session store, or the network.
package classifier

// Fraud status values Klarna returns on a completed authorization.
const (
	FraudStatusAccepted = "ACCEPTED"
	FraudStatusPending  = "PENDING"
	FraudStatusRejected = "REJECTED"
)

// AuthorizedPaymentMethod tags which Klarna payment method category the
// customer authorized.
type AuthorizedPaymentMethod struct {
	Type string `json:"type"`
}

// AuthorizationResult is the transient value received from Klarna after
// the customer completes the hosted payment UI. It is immutable once
// received and consumed exactly once.
type AuthorizationResult struct {
	FraudStatus             string                  `json:"fraud_status"`
	OrderID                 string                  `json:"order_id"`
	AuthorizedPaymentMethod AuthorizedPaymentMethod `json:"authorized_payment_method"`
}

// OutcomeKind is the normalized three-way verdict plus an explicit
// Unknown for any fraud_status outside the documented set. Unknown must
// be rejected downstream, never treated as accepted.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeAccepted
	OutcomePending
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePending:
		return "pending"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the normalized record produced from one authorization
// result. KlarnaOrderID and Method are only meaningful for Accepted;
// KlarnaOrderID also for Pending.
type Outcome struct {
	Kind          OutcomeKind
	KlarnaOrderID string
	Method        string
	// RawFraudStatus preserves the provider verdict for audit notes and
	// the Unknown reconciliation path.
	RawFraudStatus string
}

// Classify maps an authorization result onto an Outcome. It is total
// and deterministic: the three documented fraud_status values map to
// their outcomes, anything else (including the empty string) yields
// Unknown.
func Classify(res AuthorizationResult) Outcome {
	out := Outcome{
		KlarnaOrderID:  res.OrderID,
		Method:         res.AuthorizedPaymentMethod.Type,
		RawFraudStatus: res.FraudStatus,
	}
	switch res.FraudStatus {
	case FraudStatusAccepted:
		out.Kind = OutcomeAccepted
	case FraudStatusPending:
		out.Kind = OutcomePending
	case FraudStatusRejected:
		out.Kind = OutcomeRejected
	default:
		out.Kind = OutcomeUnknown
	}
	return out
}
