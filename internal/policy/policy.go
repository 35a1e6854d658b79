// Package policy evaluates merchant review rules over authorization
// outcomes. Rules are govaluate expressions compiled at construction
// time; the first matching rule decides whether an order needs manual
// escalation beyond Klarna's own verdict.
package policy

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Decision is the outcome of a review-rule evaluation.
type Decision struct {
	// EscalateManual flags the order for the merchant's manual review
	// queue in addition to any on-hold status the driver applies.
	EscalateManual bool
	// Note, when set, is appended to the order alongside the driver's
	// own status note.
	Note string
}

// Rule is one review rule. Expression is a govaluate expression over
// the parameters exposed by Parameters; rules are evaluated in the
// order given and the first match wins.
type Rule struct {
	ID         string
	Expression string
	Decision   Decision
}

// Parameters are the values review expressions may reference.
type Parameters struct {
	FraudStatus   string
	OrderAmount   int64
	Currency      string
	Country       string
	PaymentMethod string
}

func (p Parameters) toMap() map[string]interface{} {
	return map[string]interface{}{
		"fraud_status":   p.FraudStatus,
		"order_amount":   p.OrderAmount,
		"currency":       p.Currency,
		"country":        p.Country,
		"payment_method": p.PaymentMethod,
	}
}

type compiledRule struct {
	rule Rule
	expr *govaluate.EvaluableExpression
}

// ReviewPolicy holds the compiled rule set.
type ReviewPolicy struct {
	rules []compiledRule
}

// NewReviewPolicy compiles the given rules. An empty or nil rule set is
// valid and always yields the zero Decision. A rule with an empty or
// uncompilable expression fails construction.
func NewReviewPolicy(rules []Rule) (*ReviewPolicy, error) {
	rp := &ReviewPolicy{}
	for _, r := range rules {
		if r.Expression == "" {
			return nil, fmt.Errorf("policy: rule %q has an empty expression", r.ID)
		}
		expr, err := govaluate.NewEvaluableExpression(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("policy: failed to compile rule %q: %w", r.ID, err)
		}
		rp.rules = append(rp.rules, compiledRule{rule: r, expr: expr})
	}
	return rp, nil
}

// Evaluate runs the rules in order against params and returns the first
// matching rule's decision. No match returns the zero Decision. A rule
// evaluating to a non-boolean or referencing an unknown parameter is an
// error.
func (rp *ReviewPolicy) Evaluate(params Parameters) (Decision, error) {
	values := params.toMap()
	for _, cr := range rp.rules {
		result, err := cr.expr.Evaluate(values)
		if err != nil {
			return Decision{}, fmt.Errorf("policy: evaluating rule %q: %w", cr.rule.ID, err)
		}
		matched, ok := result.(bool)
		if !ok {
			return Decision{}, fmt.Errorf("policy: rule %q did not evaluate to a boolean", cr.rule.ID)
		}
		if matched {
			return cr.rule.Decision, nil
		}
	}
	return Decision{}, nil
}
