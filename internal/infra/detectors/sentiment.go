package detectors

import (
	"context"
	"strings"

	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.SentimentDetector = (*KeywordSentimentDetector)(nil)

// KeywordSentimentDetector flags conversations on negative-signal phrases.
// High-severity signals flag on a single hit; low-severity ones need two.
type KeywordSentimentDetector struct {
	high []string
	low  []string
}

func NewKeywordSentimentDetector() *KeywordSentimentDetector {
	return &KeywordSentimentDetector{
		high: []string{
			"speak to a human", "talk to a human", "real person",
			"this is unacceptable", "cancel my", "lawyer", "sue",
			"scam", "report you", "refund",
		},
		low: []string{
			"frustrated", "annoyed", "disappointed", "angry",
			"not happy", "terrible", "awful", "waste of time",
			"stop messaging", "unsubscribe",
		},
	}
}

func (d *KeywordSentimentDetector) Classify(ctx context.Context, text, tenantID string) (adapter.SentimentResult, error) {
	lower := strings.ToLower(text)

	var matched []string
	highHits := 0
	for _, s := range d.high {
		if strings.Contains(lower, s) {
			matched = append(matched, s)
			highHits++
		}
	}
	lowHits := 0
	for _, s := range d.low {
		if strings.Contains(lower, s) {
			matched = append(matched, s)
			lowHits++
		}
	}

	res := adapter.SentimentResult{MatchedSignals: matched}
	switch {
	case highHits > 0:
		res.ShouldFlag = true
		res.Severity = "high"
	case lowHits >= 2:
		res.ShouldFlag = true
		res.Severity = "medium"
	case lowHits == 1:
		res.Severity = "low"
	}
	return res, nil
}
