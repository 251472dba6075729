package ai

import (
	"github.com/pkoukk/tiktoken-go"

	"tenant-ai-agents/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the chat framing tokens around each turn.
const perMessageOverhead = 4

// estimateTokens counts prompt tokens locally with tiktoken. Models tiktoken
// does not know (Gemini included) fall back to cl100k_base, which is close
// enough for budget trimming.
func estimateTokens(model string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil)) + perMessageOverhead
	}
	return total, nil
}
