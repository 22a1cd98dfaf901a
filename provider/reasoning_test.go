package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveReasoning(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		effort ReasoningEffort
		want   ReasoningConfig
	}{
		{"none disables regardless of format", FormatAnthropic, ReasoningNone, ReasoningConfig{}},
		{"anthropic low", FormatAnthropic, ReasoningLow, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 5000}},
		{"anthropic high", FormatAnthropic, ReasoningHigh, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 20000}},
		{"openai chat uses effort string", FormatOpenAI, ReasoningMedium, ReasoningConfig{Enabled: true, OpenAIEffort: "medium"}},
		{"openai responses uses effort string", FormatOpenAIResponse, ReasoningLow, ReasoningConfig{Enabled: true, OpenAIEffort: "low"}},
		{"google maps to a budget like anthropic", FormatGoogle, ReasoningHigh, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 20000}},
		{"unknown effort falls back to medium budget", FormatAnthropic, ReasoningEffort("nonsense"), ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 10000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveReasoning(tt.format, tt.effort))
		})
	}
}

func TestEffectiveMaxTokens(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		reasoning ReasoningConfig
		want      int
	}{
		{"no reasoning, no request uses default", 0, ReasoningConfig{}, 8192},
		{"no reasoning, explicit request passed through", 4000, ReasoningConfig{}, 4000},
		{"thinking enabled, requested below budget gets raised", 2000, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 5000}, 64000},
		{"thinking enabled, requested above budget is left alone", 70000, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 5000}, 70000},
		{"thinking enabled but zero budget does not raise", 0, ReasoningConfig{Enabled: true, AnthropicBudgetTokens: 0}, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveMaxTokens(tt.requested, tt.reasoning))
		})
	}
}
