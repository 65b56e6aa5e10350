package export

import (
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/kosh/internal/domain"
)

var summaryHeaders = []any{
	"Date", "Runs", "Succeeded", "Failed",
	"Pay", "Swap", "Change trust", "Bridge",
	"Success rate",
}

// buildSummaryRow aggregates runs into one SUMMARY row dated at.
func buildSummaryRow(runs []domain.RunResult, at time.Time) []any {
	succeeded := lo.CountBy(runs, func(r domain.RunResult) bool { return r.Success })
	byFlow := lo.CountValuesBy(runs, func(r domain.RunResult) domain.Flow { return r.Flow })

	var rate any
	if len(runs) > 0 {
		rate = float64(succeeded) / float64(len(runs))
	}

	return []any{
		at.UTC().Format("02.01.2006"),
		len(runs),
		succeeded,
		len(runs) - succeeded,
		byFlow[domain.FlowPay],
		byFlow[domain.FlowSwap],
		byFlow[domain.FlowChangeTrust],
		byFlow[domain.FlowBridge],
		rate,
	}
}
