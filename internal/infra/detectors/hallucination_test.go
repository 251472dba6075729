package detectors

import (
	"context"
	"strings"
	"testing"

	"tenant-ai-agents/internal/domain/model"
)

func TestClaimCheckDetector(t *testing.T) {
	d := NewClaimCheckDetector()
	okResult := model.ToolExecutionResult{ToolID: "book_appointment", Success: true}
	failedBooking := model.ToolExecutionResult{ToolID: "book_appointment", Success: false, Error: "slot taken"}
	failedNote := model.ToolExecutionResult{ToolID: "add_crm_note", Success: false, Error: "timeout"}

	tests := []struct {
		name     string
		text     string
		results  []model.ToolExecutionResult
		detected bool
	}{
		{
			name: "no tool results", text: "I've booked your appointment!",
			results: nil, detected: false,
		},
		{
			name: "all tools succeeded", text: "All done, I've booked it.",
			results: []model.ToolExecutionResult{okResult}, detected: false,
		},
		{
			name: "failure admitted honestly", text: "I couldn't book the slot, it was already taken.",
			results: []model.ToolExecutionResult{failedBooking}, detected: false,
		},
		{
			name: "success claim after failure", text: "Great news, I've booked your appointment for Tuesday!",
			results: []model.ToolExecutionResult{failedBooking}, detected: true,
		},
		{
			name: "claim case insensitive", text: "ALL DONE!",
			results: []model.ToolExecutionResult{failedNote}, detected: true,
		},
		{
			name: "mixed outcomes still flag", text: "Successfully completed everything.",
			results: []model.ToolExecutionResult{okResult, failedNote}, detected: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := d.Check(context.Background(), tc.text, tc.results)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Detected != tc.detected {
				t.Errorf("Detected = %v, want %v", res.Detected, tc.detected)
			}
			if res.Detected && res.Reason == "" {
				t.Error("detection must carry a reason")
			}
		})
	}

	t.Run("reason names the failed tools", func(t *testing.T) {
		res, err := d.Check(context.Background(), "It's done.", []model.ToolExecutionResult{failedBooking, failedNote})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(res.Reason, "book_appointment") || !strings.Contains(res.Reason, "add_crm_note") {
			t.Errorf("Reason = %q, want both failed tool ids", res.Reason)
		}
	})
}
