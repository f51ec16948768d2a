package orchestrator

import "github.com/scriptstudio/backend/internal/models"

// Fixed per-operation costs. They gate every operation up front; the amount
// actually charged is the agent's reported usage when it reports one.
const (
	CostAnalyzeReference int64 = 80
	CostGenerateScript   int64 = 50
	CostDailyTrends      int64 = 30
)

// CostOf returns the fixed cost of op, or 0 for an unknown operation.
func CostOf(op string) int64 {
	switch op {
	case models.OperationAnalyzeReference:
		return CostAnalyzeReference
	case models.OperationGenerateScript:
		return CostGenerateScript
	case models.OperationDailyTrends:
		return CostDailyTrends
	}
	return 0
}

// chargeFor picks the amount to deduct after a successful run.
func chargeFor(op string, reported int64) int64 {
	if reported > 0 {
		return reported
	}
	return CostOf(op)
}
