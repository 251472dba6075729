package detectors

import (
	"context"
	"fmt"
	"strings"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.HallucinationDetector = (*ClaimCheckDetector)(nil)

// ClaimCheckDetector compares the assistant's final text against the actual
// tool outcomes of the same turn. A reply that asserts completion while a
// tool call failed is the classic post-tool hallucination.
type ClaimCheckDetector struct {
	successClaims []string
}

func NewClaimCheckDetector() *ClaimCheckDetector {
	return &ClaimCheckDetector{
		successClaims: []string{
			"i've booked", "i have booked", "booked you", "appointment is set",
			"i've scheduled", "i have scheduled", "successfully",
			"it's done", "all done", "i've sent", "i have sent",
			"i've added", "i have added", "confirmed your",
		},
	}
}

func (d *ClaimCheckDetector) Check(ctx context.Context, finalText string, toolResults []model.ToolExecutionResult) (adapter.HallucinationResult, error) {
	var failed []string
	for _, r := range toolResults {
		if !r.Success {
			failed = append(failed, r.ToolID)
		}
	}
	if len(failed) == 0 {
		return adapter.HallucinationResult{}, nil
	}

	lower := strings.ToLower(finalText)
	for _, claim := range d.successClaims {
		if strings.Contains(lower, claim) {
			return adapter.HallucinationResult{
				Detected: true,
				Reason:   fmt.Sprintf("reply claims %q while tools failed: %s", claim, strings.Join(failed, ", ")),
			}, nil
		}
	}
	return adapter.HallucinationResult{}, nil
}
