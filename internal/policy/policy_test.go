package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReviewPolicy_EmptyAndNilRules(t *testing.T) {
	rp, err := NewReviewPolicy(nil)
	require.NoError(t, err)
	assert.NotNil(t, rp)

	rp, err = NewReviewPolicy([]Rule{})
	require.NoError(t, err)
	assert.NotNil(t, rp)

	decision, err := rp.Evaluate(Parameters{FraudStatus: "PENDING"})
	require.NoError(t, err)
	assert.False(t, decision.EscalateManual)
	assert.Empty(t, decision.Note)
}

func TestNewReviewPolicy_CompilationError(t *testing.T) {
	_, err := NewReviewPolicy([]Rule{
		{ID: "ok", Expression: "order_amount > 100"},
		{ID: "broken", Expression: "country =="},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to compile rule "broken"`)
}

func TestNewReviewPolicy_EmptyExpression(t *testing.T) {
	_, err := NewReviewPolicy([]Rule{{ID: "empty", Expression: ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule "empty" has an empty expression`)
}

func TestReviewPolicy_FirstMatchWins(t *testing.T) {
	rp, err := NewReviewPolicy([]Rule{
		{
			ID:         "high_amount_pending",
			Expression: "fraud_status == 'PENDING' && order_amount >= 100000",
			Decision:   Decision{EscalateManual: true, Note: "High-amount order under Klarna review."},
		},
		{
			ID:         "any_pending",
			Expression: "fraud_status == 'PENDING'",
			Decision:   Decision{Note: "Order under Klarna review."},
		},
	})
	require.NoError(t, err)

	t.Run("HighAmountMatchesFirstRule", func(t *testing.T) {
		decision, errEval := rp.Evaluate(Parameters{FraudStatus: "PENDING", OrderAmount: 250000, Currency: "EUR", Country: "DE"})
		require.NoError(t, errEval)
		assert.True(t, decision.EscalateManual)
		assert.Equal(t, "High-amount order under Klarna review.", decision.Note)
	})

	t.Run("LowAmountFallsThroughToSecondRule", func(t *testing.T) {
		decision, errEval := rp.Evaluate(Parameters{FraudStatus: "PENDING", OrderAmount: 5000})
		require.NoError(t, errEval)
		assert.False(t, decision.EscalateManual)
		assert.Equal(t, "Order under Klarna review.", decision.Note)
	})

	t.Run("AcceptedMatchesNothing", func(t *testing.T) {
		decision, errEval := rp.Evaluate(Parameters{FraudStatus: "ACCEPTED", OrderAmount: 250000})
		require.NoError(t, errEval)
		assert.Equal(t, Decision{}, decision)
	})
}

func TestReviewPolicy_NonBooleanExpression(t *testing.T) {
	rp, err := NewReviewPolicy([]Rule{{ID: "arith", Expression: "order_amount + 1"}})
	require.NoError(t, err)

	_, err = rp.Evaluate(Parameters{OrderAmount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not evaluate to a boolean")
}

func TestReviewPolicy_UnknownParameter(t *testing.T) {
	rp, err := NewReviewPolicy([]Rule{{ID: "unknown", Expression: "no_such_param > 10"}})
	require.NoError(t, err)

	_, err = rp.Evaluate(Parameters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `evaluating rule "unknown"`)
}
