package model

import (
	"errors"
	"testing"

	"tenant-ai-agents/internal/domain"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		model   string
		want    Provider
		wantErr bool
	}{
		{"gpt-4o", ProviderOpenAI, false},
		{"GPT-4o-mini", ProviderOpenAI, false},
		{"o3-mini", ProviderOpenAI, false},
		{"gemini-2.0-flash", ProviderGemini, false},
		{" gemini-1.5-pro ", ProviderGemini, false},
		{"claude-3", "", true},
		{"", "", true},
	}
	for _, tc := range tests {
		got, err := ResolveProvider(tc.model)
		if tc.wantErr {
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("ResolveProvider(%q) err = %v, want ErrValidation", tc.model, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ResolveProvider(%q) = (%v, %v), want %v", tc.model, got, err, tc.want)
		}
	}
}

func TestAgentMeta(t *testing.T) {
	a := &Agent{Metadata: map[string]string{"business_name": "Acme", "empty": ""}}
	if got := a.Meta("business_name", "fallback"); got != "Acme" {
		t.Errorf("Meta = %q", got)
	}
	if got := a.Meta("empty", "fallback"); got != "fallback" {
		t.Errorf("Meta on empty value = %q, want fallback", got)
	}
	if got := a.Meta("missing", "fallback"); got != "fallback" {
		t.Errorf("Meta on missing key = %q, want fallback", got)
	}
	bare := &Agent{}
	if got := bare.Meta("any", "x"); got != "x" {
		t.Errorf("Meta on nil map = %q, want x", got)
	}
}
