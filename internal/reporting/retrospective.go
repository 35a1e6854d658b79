// Package reporting summarizes gateway activity after the fact:
// checkout attempts by outcome, amounts by currency, error and market
// breakdowns. It works over the activity log the gateway records, not
// over live state.
package reporting

import (
	"sync"
	"time"
)

// Activity statuses recorded by the gateway.
const (
	StatusAccepted     = "ACCEPTED"
	StatusPending      = "PENDING"
	StatusRejected     = "REJECTED"
	StatusSessionError = "SESSION_ERROR"
)

// LogEntry is one recorded gateway event.
type LogEntry struct {
	Timestamp time.Time
	SessionID string
	OrderID   string
	Status    string
	Amount    int64
	Currency  string
	Country   string
	ErrorCode string
}

// Recorder collects log entries. The gateway appends to it; the
// retrospective reads from it.
type Recorder struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one entry.
func (r *Recorder) Record(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the recorded log.
func (r *Recorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]LogEntry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// RetrospectiveReport summarizes a span of gateway activity.
type RetrospectiveReport struct {
	TotalEntries       int
	AcceptedPayments   int
	PendingPayments    int
	RejectedPayments   int
	SessionErrors      int
	AmountByCurrency   map[string]int64 // accepted payments only
	ErrorBreakdown     map[string]int   // session errors by code
	CountryUsage       map[string]int
	DateFrom           time.Time
	DateTo             time.Time
	ProcessingDuration time.Duration
}

// GenerateRetrospective folds a slice of log entries into a report.
func GenerateRetrospective(logs []LogEntry) *RetrospectiveReport {
	report := &RetrospectiveReport{
		AmountByCurrency: make(map[string]int64),
		ErrorBreakdown:   make(map[string]int),
		CountryUsage:     make(map[string]int),
	}
	if len(logs) == 0 {
		return report
	}

	report.DateFrom = logs[0].Timestamp
	report.DateTo = logs[0].Timestamp

	for _, entry := range logs {
		report.TotalEntries++

		if entry.Timestamp.Before(report.DateFrom) {
			report.DateFrom = entry.Timestamp
		}
		if entry.Timestamp.After(report.DateTo) {
			report.DateTo = entry.Timestamp
		}
		if entry.Country != "" {
			report.CountryUsage[entry.Country]++
		}

		switch entry.Status {
		case StatusAccepted:
			report.AcceptedPayments++
			report.AmountByCurrency[entry.Currency] += entry.Amount
		case StatusPending:
			report.PendingPayments++
		case StatusRejected:
			report.RejectedPayments++
		case StatusSessionError:
			report.SessionErrors++
			if entry.ErrorCode != "" {
				report.ErrorBreakdown[entry.ErrorCode]++
			}
		}
	}

	report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)
	return report
}
