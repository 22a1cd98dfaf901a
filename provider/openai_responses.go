package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sidecore/agentcore/domain"
)

const openaiResponsesDefaultModel = "gpt-5-codex"

// OpenAIResponsesClient implements Client for OpenAI's Responses API,
// grounded on llm2/openai_responses_provider.go's OpenAIResponsesProvider:
// final structured output arrives on ResponseCompletedEvent while text and
// function-call-argument deltas stream incrementally, keyed by OutputIndex.
type OpenAIResponsesClient struct{}

func (OpenAIResponsesClient) Stream(ctx context.Context, opts Options, partsChan chan<- StreamPart) (*FinalMessage, error) {
	params := opts.Params

	token, err := opts.Secrets.GetSecret("OPENAI_API_KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI API key: %w", err)
	}
	client := openai.NewClient(option.WithAPIKey(token))

	model := params.Model
	if model == "" {
		model = openaiResponsesDefaultModel
	}

	inputItems, err := toResponsesInput(params.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build input: %w", err)
	}

	req := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems},
		Model: openai.ChatModel(model),
		Store: openai.Bool(false),
	}
	if params.Temperature != nil {
		req.Temperature = openai.Float(float64(*params.Temperature))
	}

	if len(params.Tools) > 0 {
		req.Tools = toResponsesTools(params.Tools)
	}

	reasoning := ResolveReasoning(FormatOpenAIResponse, params.ReasoningEffort)
	if reasoning.Enabled {
		req.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		if reasoning.OpenAIEffort != "" {
			req.Reasoning.Effort = shared.ReasoningEffort(reasoning.OpenAIEffort)
			req.Reasoning.Summary = shared.ReasoningSummaryAuto
		}
	}

	policy := DefaultRetryPolicy()
	receivedAny := false
	var final *FinalMessage

	err = policy.Do(ctx, func(ctx context.Context) (int, bool, error) {
		stream := client.Responses.NewStreaming(ctx, req)

		var stopReason string
		var usage domain.Usage
		toolArgsByIndex := map[int]*[]byte{}
		toolMetaByIndex := map[int]domain.ToolUse{}
		textByIndex := map[int]*[]byte{}

	loop:
		for stream.Next() {
			receivedAny = true
			data := stream.Current()

			switch evt := data.AsAny().(type) {
			case responses.ResponseCompletedEvent:
				resp := evt.Response
				switch resp.Status {
				case responses.ResponseStatusCompleted:
					stopReason = "stop"
				case responses.ResponseStatusFailed:
					stopReason = "failed"
				case responses.ResponseStatusCancelled:
					stopReason = "cancelled"
				default:
					stopReason = string(resp.Status)
				}
				if resp.IncompleteDetails.Reason != "" {
					stopReason = string(resp.IncompleteDetails.Reason)
				}
				usage.InputTokens = int(resp.Usage.InputTokens)
				usage.OutputTokens = int(resp.Usage.OutputTokens)
				break loop

			case responses.ResponseOutputItemAddedEvent:
				idx := int(evt.OutputIndex)
				switch item := evt.Item.AsAny().(type) {
				case responses.ResponseFunctionToolCall:
					tu := domain.ToolUse{ID: item.CallID, Name: item.Name}
					toolMetaByIndex[idx] = tu
					buf := []byte(item.Arguments)
					toolArgsByIndex[idx] = &buf
					partsChan <- StreamPart{Type: PartToolCallStart, ToolCallID: tu.ID, ToolName: tu.Name}
				}

			case responses.ResponseTextDeltaEvent:
				d := data.AsResponseOutputTextDelta()
				idx := int(d.OutputIndex)
				if _, ok := textByIndex[idx]; !ok {
					buf := []byte{}
					textByIndex[idx] = &buf
				}
				*textByIndex[idx] = append(*textByIndex[idx], d.Delta...)
				partsChan <- StreamPart{Type: PartTextDelta, Delta: d.Delta}

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				d := data.AsResponseFunctionCallArgumentsDelta()
				idx := int(d.OutputIndex)
				if buf, ok := toolArgsByIndex[idx]; ok {
					*buf = append(*buf, d.Delta...)
				}

			case responses.ResponseReasoningTextDeltaEvent:
				d := data.AsResponseReasoningTextDelta()
				partsChan <- StreamPart{Type: PartThinkingDelta, Thinking: d.Delta}
			}
		}

		if streamErr := stream.Err(); streamErr != nil {
			return openaiStatusCode(streamErr), receivedAny, streamErr
		}

		// textByIndex and toolMetaByIndex share the Responses API's single
		// OutputIndex space, so a block's true position in the model's output
		// is only recoverable by merging and sorting both key sets together.
		outputIndices := make([]int, 0, len(textByIndex)+len(toolMetaByIndex))
		for idx := range textByIndex {
			outputIndices = append(outputIndices, idx)
		}
		for idx := range toolMetaByIndex {
			outputIndices = append(outputIndices, idx)
		}
		sort.Ints(outputIndices)

		output := domain.Message{Role: domain.RoleAssistant}
		for _, idx := range outputIndices {
			if buf, ok := textByIndex[idx]; ok {
				output.Content = append(output.Content, domain.ContentBlock{Type: domain.ContentText, Text: string(*buf)})
				continue
			}
			tu := toolMetaByIndex[idx]
			raw := *toolArgsByIndex[idx]
			if len(raw) == 0 || !json.Valid(raw) {
				raw = []byte("{}")
			}
			tu.Arguments = json.RawMessage(raw)
			output.Content = append(output.Content, domain.ContentBlock{Type: domain.ContentToolUse, ToolUse: &tu})
			partsChan <- StreamPart{Type: PartToolCallComplete, ToolCall: &tu}
		}

		partsChan <- StreamPart{Type: PartUsage, Usage: &usage}

		final = &FinalMessage{
			Model:      model,
			Provider:   string(FormatOpenAIResponse),
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

func toResponsesInput(messages []domain.Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam

	for _, msg := range messages {
		for _, block := range msg.Content {
			switch block.Type {
			case domain.ContentText:
				switch msg.Role {
				case domain.RoleUser:
					items = append(items, responses.ResponseInputItemParamOfMessage(block.Text, responses.EasyInputMessageRoleUser))
				case domain.RoleSystem:
					items = append(items, responses.ResponseInputItemParamOfMessage(block.Text, responses.EasyInputMessageRoleSystem))
				case domain.RoleAssistant:
					content := []responses.ResponseOutputMessageContentUnionParam{
						{OfOutputText: &responses.ResponseOutputTextParam{Text: block.Text}},
					}
					items = append(items, responses.ResponseInputItemParamOfOutputMessage(content, "", responses.ResponseOutputMessageStatusCompleted))
				default:
					return nil, fmt.Errorf("unsupported role %s for text block", msg.Role)
				}

			case domain.ContentToolUse:
				if msg.Role != domain.RoleAssistant {
					return nil, fmt.Errorf("tool_use blocks must be in assistant messages, got role %s", msg.Role)
				}
				if block.ToolUse == nil || block.ToolUse.ID == "" || block.ToolUse.Name == "" {
					return nil, fmt.Errorf("tool_use block missing id/name")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					string(block.ToolUse.Arguments), block.ToolUse.ID, block.ToolUse.Name))

			case domain.ContentToolResult:
				if block.ToolResult == nil {
					return nil, fmt.Errorf("tool_result block missing payload")
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(block.ToolResult.ToolUseID, block.ToolResult.Output))

			default:
				return nil, fmt.Errorf("unsupported content block type %s for responses input", block.Type)
			}
		}
	}

	return items, nil
}

func toResponsesTools(tools []domain.ToolDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:       t.Name,
				Parameters: schemaToFunctionParams(t.Parameters),
				Strict:     openai.Bool(false),
			},
		}
		if t.Description != "" {
			out[i].OfFunction.Description = openai.String(t.Description)
		}
	}
	return out
}
