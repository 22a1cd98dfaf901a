package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/sidecore/agentcore/domain"
	"google.golang.org/genai"
)

const (
	googleDefaultModel = "gemini-3-pro-preview"
)

var googleLegacyThinkingBudget = map[ReasoningEffort]int32{
	ReasoningLow:    1024,
	ReasoningMedium: 8192,
	ReasoningHigh:   24576,
}

// GoogleClient implements Client for Google's generateContent wire format,
// grounded on llm2/google_provider.go's GoogleProvider: Google streams
// whole content parts (not token-level JSON deltas for tool args), so
// tool_use blocks arrive complete in a single chunk while text and
// thinking parts are coalesced across chunks via a small state machine.
type GoogleClient struct{}

func (GoogleClient) Stream(ctx context.Context, opts Options, partsChan chan<- StreamPart) (*FinalMessage, error) {
	params := opts.Params

	apiKey, err := opts.Secrets.GetSecret("GOOGLE_API_KEY")
	if err != nil {
		apiKey, err = opts.Secrets.GetSecret("GEMINI_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("failed to get Google API key: %w", err)
		}
	}

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	model := params.Model
	if model == "" {
		model = googleDefaultModel
	}

	contents := toGoogleContents(params.Messages)

	config := &genai.GenerateContentConfig{}

	if len(params.Tools) > 0 {
		toolConfig, err := toGoogleToolChoice(params.ToolChoice)
		if err != nil {
			return nil, err
		}
		config.ToolConfig = toolConfig
		config.Tools = toGoogleTools(params.Tools)
	}

	reasoning := ResolveReasoning(FormatGoogle, params.ReasoningEffort)
	if reasoning.Enabled {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		if strings.Contains(model, "2.5") {
			if budget, ok := googleLegacyThinkingBudget[params.ReasoningEffort]; ok {
				config.ThinkingConfig.ThinkingBudget = &budget
			}
		} else if params.ReasoningEffort != ReasoningNone {
			config.ThinkingConfig.ThinkingLevel = genai.ThinkingLevel(strings.ToUpper(string(params.ReasoningEffort)))
		}
	}

	if params.Temperature != nil {
		config.Temperature = params.Temperature
	}
	if params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxTokens)
	}

	policy := DefaultRetryPolicy()
	receivedAny := false
	var final *FinalMessage

	err = policy.Do(ctx, func(ctx context.Context) (int, bool, error) {
		stream := client.Models.GenerateContentStream(ctx, model, contents, config)

		state := &googleStreamState{}
		var output domain.Message
		output.Role = domain.RoleAssistant
		blocks := map[int]*domain.ContentBlock{}
		var lastResult *genai.GenerateContentResponse

		for result, iterErr := range stream {
			if iterErr != nil {
				return googleStatusCode(iterErr), receivedAny, fmt.Errorf("failed to iterate on google stream: %w", iterErr)
			}
			receivedAny = true
			lastResult = result
			if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
				continue
			}
			for _, part := range result.Candidates[0].Content.Parts {
				emitGooglePart(part, state, blocks, partsChan)
			}
		}
		closeGoogleBlock(state, blocks, partsChan)

		maxIdx := -1
		for idx := range blocks {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
		for i := 0; i <= maxIdx; i++ {
			if b, ok := blocks[i]; ok {
				output.Content = append(output.Content, *b)
			}
		}

		var usage domain.Usage
		var stopReason string
		if lastResult != nil && lastResult.UsageMetadata != nil {
			usage.InputTokens = int(lastResult.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(lastResult.UsageMetadata.CandidatesTokenCount) + int(lastResult.UsageMetadata.ThoughtsTokenCount)
			usage.CacheReadInputTokens = int(lastResult.UsageMetadata.CachedContentTokenCount)
		}
		if lastResult != nil && len(lastResult.Candidates) > 0 {
			stopReason = string(lastResult.Candidates[0].FinishReason)
		}
		partsChan <- StreamPart{Type: PartUsage, Usage: &usage}

		final = &FinalMessage{
			Model:      model,
			Provider:   string(FormatGoogle),
			Output:     output,
			StopReason: stopReason,
			Usage:      usage,
		}
		return 0, true, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// googleStatusCode extracts an HTTP-ish status code from a genai SDK error
// so RetryPolicy can decide whether a pre-first-byte failure is retryable.
// The Gemini REST error envelope carries its status as a numeric "code"
// field, which genai.APIError surfaces directly.
func googleStatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// googleStreamState coalesces text/thinking deltas across chunks into a
// single block, per the teacher's comment: Google doesn't concatenate
// parts that carry a thought signature.
type googleStreamState struct {
	nextIndex   int
	open        bool
	openType    domain.ContentBlockType
	openIndex   int
	openHasSig  bool
	pendingSig  []byte
}

func emitGooglePart(part *genai.Part, state *googleStreamState, blocks map[int]*domain.ContentBlock, partsChan chan<- StreamPart) {
	if part.FunctionCall != nil {
		closeGoogleBlock(state, blocks, partsChan)

		idx := state.nextIndex
		state.nextIndex++
		argBytes, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			argBytes = []byte("{}")
		}
		tu := domain.ToolUse{ID: part.FunctionCall.ID, Name: part.FunctionCall.Name, Arguments: argBytes}
		blocks[idx] = &domain.ContentBlock{Type: domain.ContentToolUse, ToolUse: &tu}
		partsChan <- StreamPart{Type: PartToolCallComplete, ToolCall: &tu}
		return
	}

	if part.Text == "" && len(part.ThoughtSignature) == 0 {
		return
	}
	if part.Text == "" && len(part.ThoughtSignature) > 0 {
		state.pendingSig = part.ThoughtSignature
		return
	}

	blockType := domain.ContentText
	if part.Thought {
		blockType = domain.ContentThinking
	}
	hasSig := len(part.ThoughtSignature) > 0

	needNew := !state.open || state.openType != blockType || state.openHasSig || hasSig
	if needNew {
		closeGoogleBlock(state, blocks, partsChan)
		idx := state.nextIndex
		state.nextIndex++
		state.open = true
		state.openType = blockType
		state.openIndex = idx
		state.openHasSig = hasSig

		if blockType == domain.ContentThinking {
			blocks[idx] = &domain.ContentBlock{Type: domain.ContentThinking, Thinking: &domain.Thinking{Signature: part.ThoughtSignature}}
		} else {
			blocks[idx] = &domain.ContentBlock{Type: domain.ContentText}
		}
	}

	b := blocks[state.openIndex]
	if blockType == domain.ContentThinking && b.Thinking != nil {
		b.Thinking.Text += part.Text
		partsChan <- StreamPart{Type: PartThinkingDelta, Thinking: part.Text}
	} else {
		b.Text += part.Text
		partsChan <- StreamPart{Type: PartTextDelta, Delta: part.Text}
	}
}

func closeGoogleBlock(state *googleStreamState, blocks map[int]*domain.ContentBlock, partsChan chan<- StreamPart) {
	if !state.open {
		return
	}
	if len(state.pendingSig) > 0 {
		if b := blocks[state.openIndex]; b != nil {
			if b.Type == domain.ContentThinking && b.Thinking != nil {
				b.Thinking.Signature = state.pendingSig
			}
		}
		state.pendingSig = nil
	}
	state.open = false
}

func toGoogleContents(messages []domain.Message) []*genai.Content {
	var contents []*genai.Content
	var currentRole string
	var currentParts []*genai.Part

	flush := func() {
		if len(currentParts) > 0 {
			contents = append(contents, &genai.Content{Parts: currentParts, Role: currentRole})
		}
	}

	for _, msg := range messages {
		role := "user"
		if msg.Role == domain.RoleAssistant {
			role = "model"
		}
		if role != currentRole && currentRole != "" {
			flush()
			currentParts = nil
		}
		currentRole = role

		for _, block := range msg.Content {
			switch block.Type {
			case domain.ContentText:
				if block.Text == "" {
					continue
				}
				currentParts = append(currentParts, &genai.Part{Text: block.Text})
			case domain.ContentToolUse:
				if block.ToolUse == nil {
					continue
				}
				var args map[string]any
				_ = json.Unmarshal(block.ToolUse.Arguments, &args)
				currentParts = append(currentParts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: block.ToolUse.ID, Name: block.ToolUse.Name, Args: args},
				})
			case domain.ContentToolResult:
				if block.ToolResult == nil {
					continue
				}
				currentParts = append(currentParts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       block.ToolResult.ToolUseID,
						Name:     block.ToolResult.ToolUseID,
						Response: map[string]any{"output": block.ToolResult.Output, "isError": block.ToolResult.IsError},
					},
				})
			}
		}
	}
	flush()
	return contents
}

func toGoogleTools(tools []domain.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGoogleSchema(t.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGoogleSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(schema.Type)),
		Description: schema.Description,
		Required:    schema.Required,
	}
	if schema.Enum != nil {
		out.Enum = make([]string, 0, len(schema.Enum))
		for _, v := range schema.Enum {
			out.Enum = append(out.Enum, fmt.Sprintf("%v", v))
		}
	}
	if schema.Properties != nil {
		out.Properties = make(map[string]*genai.Schema)
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toGoogleSchema(pair.Value)
		}
	}
	return out
}

func toGoogleToolChoice(choice domain.ToolChoice) (*genai.ToolConfig, error) {
	var mode genai.FunctionCallingConfigMode
	var allowed []string
	switch choice.Type {
	case domain.ToolChoiceRequired:
		mode = genai.FunctionCallingConfigModeAny
	case domain.ToolChoiceTool:
		mode = genai.FunctionCallingConfigModeAny
		allowed = append(allowed, choice.Name)
	default:
		mode = genai.FunctionCallingConfigModeAuto
	}
	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode, AllowedFunctionNames: allowed},
	}, nil
}
