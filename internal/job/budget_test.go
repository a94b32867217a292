package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudgetTracker_Unlimited(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{})
	bt.Record(1_000_000, 99.0)

	status := bt.Check()
	assert.True(t, status.CanContinue)
	assert.Equal(t, BudgetReasonNone, status.ReasonCode)
}

func TestBudgetTracker_TokenLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxTokens: 1000})

	bt.Record(400, 0)
	assert.True(t, bt.Check().CanContinue)

	bt.Record(600, 0)
	status := bt.Check()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonTokens, status.ReasonCode)
	assert.Contains(t, status.Reason, "token budget exhausted")
}

func TestBudgetTracker_CostLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxCostUSD: 1.0})

	bt.Record(100, 0.5)
	assert.True(t, bt.Check().CanContinue)

	bt.Record(100, 0.5)
	status := bt.Check()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonCost, status.ReasonCode)
}

func TestBudgetTracker_TimeLimit(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{MaxDuration: time.Nanosecond})
	time.Sleep(time.Millisecond)

	status := bt.Check()
	assert.False(t, status.CanContinue)
	assert.Equal(t, BudgetReasonTime, status.ReasonCode)
}

func TestBudgetTracker_Accumulates(t *testing.T) {
	bt := NewBudgetTracker(BudgetLimits{})
	bt.Record(100, 0.25)
	bt.Record(200, 0.50)

	assert.Equal(t, 300, bt.TokensUsed())
	assert.InDelta(t, 0.75, bt.CostUSD(), 1e-9)
}
