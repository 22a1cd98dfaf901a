package provider

import (
	"context"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/secretmanager"
)

// Format identifies which wire format a request should be built for.
// Grounded on ModelConfig.Provider in the teacher's common package.
type Format string

const (
	FormatAnthropic      Format = "anthropic"
	FormatOpenAI         Format = "openai"
	FormatOpenAIResponse Format = "openai-responses"
	FormatGoogle         Format = "google"
)

// ReasoningEffort is the neutral low/medium/high input to the reasoning
// policy function described in spec.md §4.2.
type ReasoningEffort string

const (
	ReasoningNone   ReasoningEffort = ""
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// Params holds the neutral request parameters, grounded on llm2.Params.
type Params struct {
	Messages          []domain.Message
	Tools             []domain.ToolDefinition
	ToolChoice        domain.ToolChoice
	ParallelToolCalls *bool
	Temperature       *float32
	Provider          Format
	Model             string
	MaxTokens         int
	ReasoningEffort   ReasoningEffort
}

// Options combines request parameters with secrets, grounded on llm2.Options.
type Options struct {
	Params  Params
	Secrets secretmanager.SecretManager
}

// Client streams LLM responses as StreamParts and returns a FinalMessage.
// Implementations MUST NOT close partsChan; the caller owns its lifecycle.
// Grounded on llm2.Provider.
type Client interface {
	Stream(ctx context.Context, opts Options, partsChan chan<- StreamPart) (*FinalMessage, error)
}
