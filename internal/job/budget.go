package job

import (
	"fmt"
	"time"
)

// BudgetReasonCode identifies which budget limit was exceeded.
type BudgetReasonCode string

const (
	// BudgetReasonNone indicates no budget limit was exceeded.
	BudgetReasonNone BudgetReasonCode = "none"
	// BudgetReasonTokens indicates the token limit was exceeded.
	BudgetReasonTokens BudgetReasonCode = "tokens"
	// BudgetReasonCost indicates the cost limit was exceeded.
	BudgetReasonCost BudgetReasonCode = "cost"
	// BudgetReasonTime indicates the wall-clock limit was exceeded.
	BudgetReasonTime BudgetReasonCode = "time"
)

// BudgetLimits defines the per-job budget. Zero means unlimited.
type BudgetLimits struct {
	// MaxTokens is the total token budget across all completion calls.
	MaxTokens int `json:"max_tokens"`

	// MaxCostUSD is the total cost budget in USD.
	MaxCostUSD float64 `json:"max_cost_usd"`

	// MaxDuration is the total wall-clock budget for the job.
	MaxDuration time.Duration `json:"max_duration"`
}

// BudgetStatus is the result of a budget check.
type BudgetStatus struct {
	// CanContinue indicates whether the loop may proceed.
	CanContinue bool

	// Reason is a human-readable explanation if CanContinue is false.
	Reason string

	// ReasonCode identifies the exceeded limit.
	ReasonCode BudgetReasonCode
}

// BudgetTracker tracks one job's consumption against its limits. A
// tracker is owned by the job's controller and never mutated concurrently
// by more than one path.
type BudgetTracker struct {
	limits     BudgetLimits
	tokensUsed int
	costUSD    float64
	startTime  time.Time
}

// NewBudgetTracker creates a tracker; the wall clock starts immediately.
func NewBudgetTracker(limits BudgetLimits) *BudgetTracker {
	return &BudgetTracker{limits: limits, startTime: time.Now()}
}

// Record adds one completion call's consumption.
func (bt *BudgetTracker) Record(tokens int, costUSD float64) {
	bt.tokensUsed += tokens
	bt.costUSD += costUSD
}

// TokensUsed returns the tokens consumed so far.
func (bt *BudgetTracker) TokensUsed() int {
	return bt.tokensUsed
}

// CostUSD returns the cost consumed so far.
func (bt *BudgetTracker) CostUSD() float64 {
	return bt.costUSD
}

// Check reports whether the job is still within budget. Exceeding any
// limit is fatal and independent of retries remaining.
func (bt *BudgetTracker) Check() BudgetStatus {
	if bt.limits.MaxTokens > 0 && bt.tokensUsed >= bt.limits.MaxTokens {
		return BudgetStatus{
			Reason:     fmt.Sprintf("token budget exhausted (%d/%d)", bt.tokensUsed, bt.limits.MaxTokens),
			ReasonCode: BudgetReasonTokens,
		}
	}
	if bt.limits.MaxCostUSD > 0 && bt.costUSD >= bt.limits.MaxCostUSD {
		return BudgetStatus{
			Reason:     fmt.Sprintf("cost budget exhausted ($%.2f/$%.2f)", bt.costUSD, bt.limits.MaxCostUSD),
			ReasonCode: BudgetReasonCost,
		}
	}
	if bt.limits.MaxDuration > 0 {
		elapsed := time.Since(bt.startTime)
		if elapsed >= bt.limits.MaxDuration {
			return BudgetStatus{
				Reason:     fmt.Sprintf("wall-clock budget exhausted (%.1f/%.1f minutes)", elapsed.Minutes(), bt.limits.MaxDuration.Minutes()),
				ReasonCode: BudgetReasonTime,
			}
		}
	}
	return BudgetStatus{CanContinue: true, ReasonCode: BudgetReasonNone}
}
