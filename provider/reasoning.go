package provider

// ReasoningConfig is the embedded JSON object (or nil) a request body
// carries for extended/visible reasoning, per spec.md §4.2: a single
// policy function centralizes the per-format shape so each provider's
// Stream only has to apply it.
type ReasoningConfig struct {
	// Anthropic: thinking.budget_tokens (must be < max_tokens).
	AnthropicBudgetTokens int64
	// OpenAI-style (chat/completions, responses): reasoning_effort.
	OpenAIEffort string
	// DeepSeek-style (OpenAI-compatible custom providers): reasoning.enabled.
	DeepSeekEnabled bool
	Enabled         bool
}

// budgetByEffort mirrors the low/medium/high -> budget_tokens mapping
// grounded on llm2/anthropic_provider.go's Stream (ReasoningEffort switch).
var budgetByEffort = map[ReasoningEffort]int64{
	ReasoningLow:    5000,
	ReasoningMedium: 10000,
	ReasoningHigh:   20000,
}

// ResolveReasoning implements the "(format, enabled?, budget?, effort?) ->
// embedded JSON object or nothing" policy function spec.md §4.2 calls for.
func ResolveReasoning(format Format, effort ReasoningEffort) ReasoningConfig {
	if effort == ReasoningNone {
		return ReasoningConfig{}
	}
	budget, ok := budgetByEffort[effort]
	if !ok {
		budget = budgetByEffort[ReasoningMedium]
	}

	switch format {
	case FormatAnthropic:
		return ReasoningConfig{Enabled: true, AnthropicBudgetTokens: budget}
	case FormatOpenAI, FormatOpenAIResponse:
		return ReasoningConfig{Enabled: true, OpenAIEffort: string(effort)}
	case FormatGoogle:
		// Google's "thinking" knob is a budget, closest to Anthropic's shape.
		return ReasoningConfig{Enabled: true, AnthropicBudgetTokens: budget}
	default:
		return ReasoningConfig{}
	}
}

// EffectiveMaxTokens applies spec.md §4.2's output-quota requirement:
// "max_tokens is raised to 64000 when Anthropic thinking is enabled
// (max_tokens > budget_tokens)".
func EffectiveMaxTokens(requested int, reasoning ReasoningConfig) int {
	if reasoning.Enabled && reasoning.AnthropicBudgetTokens > 0 {
		const raised = 64000
		if requested <= int(reasoning.AnthropicBudgetTokens) {
			return raised
		}
	}
	if requested <= 0 {
		return 8192
	}
	return requested
}
