// Package orderstate maps normalized authorization outcomes onto
// merchant order-status transitions. The order aggregate itself is
// owned by the host commerce system; this package mutates it through
// the Order contract and never creates one.
package orderstate

import (
	"sync"
)

// Status is the merchant order status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOnHold     Status = "on-hold"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

// Metadata keys written by the driver.
const (
	MetaKlarnaOrderID     = "klarna_order_id"
	MetaKlarnaEnvironment = "klarna_environment"
	MetaKlarnaCountry     = "klarna_country"
	MetaTransactionID     = "transaction_id"
)

// Order is the collaborator contract for the host's order aggregate.
type Order interface {
	// ID returns the merchant order identifier.
	ID() string
	// Status returns the current order status.
	Status() Status
	// SetStatus transitions the order and appends a status note.
	SetStatus(status Status, note string)
	// AddNote appends an order note without changing status.
	AddNote(note string)
	// SetMetadata writes one metadata key/value pair.
	SetMetadata(key, value string)
	// CompletePayment marks the payment captured-authorized with the
	// provider order id and moves the order to processing.
	CompletePayment(providerOrderID string)
	// PaymentMethodTitle returns the customer-facing method title.
	PaymentMethodTitle() string
	// SetPaymentMethodTitle replaces the customer-facing method title.
	SetPaymentMethodTitle(title string)
}

// MemoryOrder is an in-memory Order used by the server's order registry
// and by tests.
type MemoryOrder struct {
	mu                 sync.Mutex
	id                 string
	status             Status
	notes              []string
	metadata           map[string]string
	paymentMethodTitle string
	transactionID      string
}

// NewMemoryOrder creates a pending order with the given id and method
// title.
func NewMemoryOrder(id, paymentMethodTitle string) *MemoryOrder {
	return &MemoryOrder{
		id:                 id,
		status:             StatusPending,
		metadata:           make(map[string]string),
		paymentMethodTitle: paymentMethodTitle,
	}
}

func (o *MemoryOrder) ID() string {
	return o.id
}

func (o *MemoryOrder) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *MemoryOrder) SetStatus(status Status, note string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
	if note != "" {
		o.notes = append(o.notes, note)
	}
}

func (o *MemoryOrder) AddNote(note string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notes = append(o.notes, note)
}

func (o *MemoryOrder) SetMetadata(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metadata[key] = value
}

func (o *MemoryOrder) CompletePayment(providerOrderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = StatusProcessing
	o.transactionID = providerOrderID
}

func (o *MemoryOrder) PaymentMethodTitle() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paymentMethodTitle
}

func (o *MemoryOrder) SetPaymentMethodTitle(title string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paymentMethodTitle = title
}

// Metadata returns the value stored under key, for inspection.
func (o *MemoryOrder) Metadata(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metadata[key]
}

// Notes returns a copy of the accumulated order notes.
func (o *MemoryOrder) Notes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	notes := make([]string, len(o.notes))
	copy(notes, o.notes)
	return notes
}

// TransactionID returns the provider order id recorded by
// CompletePayment.
func (o *MemoryOrder) TransactionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transactionID
}
