package provider

import "fmt"

// Registry maps a wire Format to the Client that speaks it. Grounded on
// llm2/provider.go's trivial Provider interface; the dispatch-by-format
// table itself is grounded on how llm2's callers (chat_history.go et al.)
// pick a provider from ModelConfig.Provider.
type Registry struct {
	clients map[Format]Client
}

// NewRegistry builds the standard four-format registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: map[Format]Client{
			FormatAnthropic:      AnthropicClient{},
			FormatOpenAI:         OpenAIClient{},
			FormatOpenAIResponse: OpenAIResponsesClient{},
			FormatGoogle:         GoogleClient{},
		},
	}
}

// Register overrides or adds a client for a format, e.g. to point
// OpenAIClient at a custom BaseURL for an OpenAI-compatible provider.
func (r *Registry) Register(format Format, client Client) {
	r.clients[format] = client
}

func (r *Registry) Lookup(format Format) (Client, error) {
	c, ok := r.clients[format]
	if !ok {
		return nil, fmt.Errorf("no provider client registered for format %q", format)
	}
	return c, nil
}
