package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/sidecore/agentcore/domain"
)

const (
	anthropicDefaultModel     = "claude-opus-4-5"
	anthropicDefaultMaxTokens = 16000
)

// AnthropicClient implements Client for the Anthropic-messages wire
// format. Grounded on llm2/anthropic_provider.go's AnthropicProvider.
type AnthropicClient struct{}

func (AnthropicClient) Stream(ctx context.Context, opts Options, partsChan chan<- StreamPart) (*FinalMessage, error) {
	params := opts.Params

	token, err := opts.Secrets.GetSecret("ANTHROPIC_API_KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to get Anthropic API key: %w", err)
	}
	httpClient := &http.Client{Timeout: 45 * time.Minute}
	client := anthropic.NewClient(
		option.WithHTTPClient(httpClient),
		option.WithAPIKey(token),
	)

	model := params.Model
	if model == "" {
		model = anthropicDefaultModel
	}

	reasoning := ResolveReasoning(FormatAnthropic, params.ReasoningEffort)
	maxTokens := EffectiveMaxTokens(params.MaxTokens, reasoning)
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if params.Temperature != nil {
		req.Temperature = anthropic.Opt(float64(*params.Temperature))
	}
	if reasoning.Enabled {
		req.Thinking = anthropic.ThinkingConfigParamOfEnabled(reasoning.AnthropicBudgetTokens)
	}

	msgs, err := toAnthropicMessages(params.Messages)
	if err != nil {
		return nil, err
	}
	req.Messages = msgs

	if len(params.Tools) > 0 {
		req.Tools = toAnthropicTools(params.Tools)
		req.ToolChoice = toAnthropicToolChoice(params.ToolChoice, params.ParallelToolCalls != nil && *params.ParallelToolCalls)
	}

	policy := DefaultRetryPolicy()
	receivedAny := false
	var final *FinalMessage

	err = policy.Do(ctx, func(ctx context.Context) (int, bool, error) {
		stream := client.Messages.NewStreaming(ctx, req)

		var finalMessage anthropic.Message
		nextBlockIndex := 0
		blockIndexMap := map[int64]int{}
		started, stopped := 0, 0
		toolArgs := map[int]*[]byte{}
		toolMeta := map[int]domain.ToolUse{}
		var usage domain.Usage

		for stream.Next() {
			receivedAny = true
			event := stream.Current()
			if err := finalMessage.Accumulate(event); err != nil {
				return 0, receivedAny, fmt.Errorf("failed to accumulate anthropic message: %w", err)
			}

			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				idx := nextBlockIndex
				blockIndexMap[evt.Index] = idx
				nextBlockIndex++
				started++

				switch evt.ContentBlock.Type {
				case "tool_use":
					tu := domain.ToolUse{ID: evt.ContentBlock.ID, Name: evt.ContentBlock.Name}
					toolMeta[idx] = tu
					buf := []byte{}
					toolArgs[idx] = &buf
					partsChan <- StreamPart{Type: PartToolCallStart, ToolCallID: tu.ID, ToolName: tu.Name}
				case "thinking":
					// started; deltas follow
				case "text":
					// started; deltas follow
				}

			case anthropic.ContentBlockDeltaEvent:
				idx, ok := blockIndexMap[evt.Index]
				if !ok {
					return 0, receivedAny, fmt.Errorf("delta for unknown block index %d", evt.Index)
				}
				switch delta := evt.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					partsChan <- StreamPart{Type: PartTextDelta, Delta: delta.Text}
				case anthropic.InputJSONDelta:
					if buf, ok := toolArgs[idx]; ok {
						*buf = append(*buf, delta.PartialJSON...)
					}
				case anthropic.ThinkingDelta:
					partsChan <- StreamPart{Type: PartThinkingDelta, Thinking: delta.Thinking}
				case anthropic.SignatureDelta:
					partsChan <- StreamPart{Type: PartThinkingComplete, Signature: []byte(delta.Signature)}
				}

			case anthropic.ContentBlockStopEvent:
				idx, ok := blockIndexMap[evt.Index]
				if !ok {
					return 0, receivedAny, fmt.Errorf("stop for unknown block index %d", evt.Index)
				}
				stopped++
				if tu, ok := toolMeta[idx]; ok {
					raw := *toolArgs[idx]
					if len(raw) == 0 {
						raw = []byte("{}")
					}
					if !json.Valid(raw) {
						raw = []byte("{}")
					}
					tu.Arguments = json.RawMessage(raw)
					partsChan <- StreamPart{Type: PartToolCallComplete, ToolCall: &tu}
				}
			}
		}

		if streamErr := stream.Err(); streamErr != nil {
			return anthropicStatusCode(streamErr), receivedAny, streamErr
		}
		if started != stopped {
			return 0, receivedAny, fmt.Errorf("anthropic stream truncated: started %d blocks, stopped %d", started, stopped)
		}

		output := accumulateAnthropicOutput(finalMessage)
		usage = domain.Usage{
			InputTokens:           int(finalMessage.Usage.InputTokens) + int(finalMessage.Usage.CacheReadInputTokens) + int(finalMessage.Usage.CacheCreationInputTokens),
			OutputTokens:          int(finalMessage.Usage.OutputTokens),
			CacheReadInputTokens:  int(finalMessage.Usage.CacheReadInputTokens),
			CacheWriteInputTokens: int(finalMessage.Usage.CacheCreationInputTokens),
		}
		partsChan <- StreamPart{Type: PartUsage, Usage: &usage}

		responseModel := string(finalMessage.Model)
		if responseModel == "" {
			responseModel = model
		}

		final = &FinalMessage{
			ID:           finalMessage.ID,
			Model:        responseModel,
			Provider:     string(FormatAnthropic),
			Output:       output,
			StopReason:   string(finalMessage.StopReason),
			StopSequence: finalMessage.StopSequence,
			Usage:        usage,
		}
		return 0, true, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// anthropicStatusCode extracts the HTTP status code from an Anthropic SDK
// error so RetryPolicy can decide whether a pre-first-byte failure is
// retryable. Mirrors openaiStatusCode: both SDKs are Stainless-generated
// and expose the same *Error{StatusCode} shape.
func anthropicStatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// accumulateAnthropicOutput converts the SDK's own accumulated Message
// (already assembled by Message.Accumulate as the stream progressed) into
// our normalized domain.Message.
func accumulateAnthropicOutput(m anthropic.Message) domain.Message {
	out := domain.Message{Role: domain.RoleAssistant}
	for _, block := range m.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content = append(out.Content, domain.ContentBlock{Type: domain.ContentText, Text: b.Text})
		case anthropic.ThinkingBlock:
			out.Content = append(out.Content, domain.ContentBlock{
				Type:     domain.ContentThinking,
				Thinking: &domain.Thinking{Text: b.Thinking, Signature: []byte(b.Signature)},
			})
		case anthropic.RedactedThinkingBlock:
			out.Content = append(out.Content, domain.ContentBlock{
				Type:             domain.ContentRedactedThinking,
				RedactedThinking: &domain.RedactedThinking{Data: []byte(b.Data)},
			})
		case anthropic.ToolUseBlock:
			argBytes, _ := json.Marshal(b.Input)
			out.Content = append(out.Content, domain.ContentBlock{
				Type: domain.ContentToolUse,
				ToolUse: &domain.ToolUse{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: argBytes,
				},
			})
		}
	}
	return out
}

func toAnthropicMessages(messages []domain.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var curRole anthropic.MessageParamRole
	var cur []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if curRole == anthropic.MessageParamRoleUser {
			result = append(result, anthropic.NewUserMessage(cur...))
		} else {
			result = append(result, anthropic.NewAssistantMessage(cur...))
		}
		cur = nil
	}

	for _, msg := range messages {
		role := anthropic.MessageParamRoleUser
		if msg.Role == domain.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if role != curRole && len(cur) > 0 {
			flush()
		}
		curRole = role

		for _, block := range msg.Content {
			b, err := contentBlockToAnthropic(block)
			if err != nil {
				return nil, err
			}
			cur = append(cur, b)
		}
	}
	flush()
	return result, nil
}

func contentBlockToAnthropic(block domain.ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch block.Type {
	case domain.ContentText:
		return anthropic.NewTextBlock(block.Text), nil
	case domain.ContentThinking:
		if block.Thinking == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("thinking block missing payload")
		}
		return anthropic.ContentBlockParamUnion{
			OfThinking: &anthropic.ThinkingBlockParam{
				Thinking:  block.Thinking.Text,
				Signature: string(block.Thinking.Signature),
			},
		}, nil
	case domain.ContentToolUse:
		if block.ToolUse == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("tool_use block missing payload")
		}
		var args map[string]interface{}
		if len(block.ToolUse.Arguments) > 0 {
			if err := json.Unmarshal(block.ToolUse.Arguments, &args); err != nil {
				args = map[string]interface{}{"invalid_json_stringified": string(block.ToolUse.Arguments)}
			}
		} else {
			args = map[string]interface{}{}
		}
		return anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{ID: block.ToolUse.ID, Name: block.ToolUse.Name, Input: args},
		}, nil
	case domain.ContentToolResult:
		if block.ToolResult == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("tool_result block missing payload")
		}
		return anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: block.ToolResult.ToolUseID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: block.ToolResult.Output}},
				},
				IsError: anthropic.Bool(block.ToolResult.IsError),
			},
		}, nil
	case domain.ContentImage:
		if block.Image == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("image block missing payload")
		}
		if block.Image.URL != "" {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: block.Image.URL, Type: "url"}), nil
		}
		encoded := base64.StdEncoding.EncodeToString(block.Image.Data)
		return anthropic.NewImageBlockBase64(block.Image.MediaType, encoded), nil
	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported content block type for anthropic: %s", block.Type)
	}
}

func toAnthropicTools(tools []domain.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		props := map[string]interface{}{}
		var required []string
		if t.Parameters != nil {
			required = t.Parameters.Required
			if t.Parameters.Properties != nil {
				for pair := t.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
					props[pair.Key] = pair.Value
				}
			}
		}
		out[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.Opt(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
					Type:       constant.Object("object"),
				},
			},
		}
	}
	return out
}

func toAnthropicToolChoice(choice domain.ToolChoice, parallel bool) anthropic.ToolChoiceUnionParam {
	disable := anthropic.Opt(!parallel)
	switch choice.Type {
	case domain.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: disable}}
	case domain.ToolChoiceTool:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name, DisableParallelToolUse: disable}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: disable}}
	}
}
