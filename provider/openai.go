package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sidecore/agentcore/domain"
)

const openaiChatDefaultModel = "gpt-5.2"

// OpenAIClient implements Client for the OpenAI chat/completions wire
// format. Grounded on llm2/openai_provider.go's OpenAIProvider, including
// its block-index bookkeeping for streamed tool-call deltas and its
// wrapOpenAIError fallback for non-standard OpenAI-compatible providers.
type OpenAIClient struct {
	BaseURL      string
	DefaultModel string
}

func (c OpenAIClient) Stream(ctx context.Context, opts Options, partsChan chan<- StreamPart) (*FinalMessage, error) {
	params := opts.Params

	token, err := opts.Secrets.GetSecret("OPENAI_API_KEY")
	if err != nil {
		return nil, fmt.Errorf("failed to get OpenAI API key: %w", err)
	}

	httpClient := &http.Client{Timeout: 45 * time.Minute}
	clientOptions := []option.RequestOption{
		option.WithAPIKey(token),
		option.WithHTTPClient(httpClient),
	}
	if c.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(c.BaseURL))
	}
	client := openai.NewClient(clientOptions...)

	model := params.Model
	if model == "" {
		if c.DefaultModel != "" {
			model = c.DefaultModel
		} else {
			model = openaiChatDefaultModel
		}
	}

	chatMessages, err := toOpenAIChatMessages(params.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to build messages: %w", err)
	}

	req := openai.ChatCompletionNewParams{
		Messages: chatMessages,
		Model:    shared.ChatModel(model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if params.Temperature != nil {
		req.Temperature = openai.Float(float64(*params.Temperature))
	}

	reasoning := ResolveReasoning(FormatOpenAI, params.ReasoningEffort)
	maxTokens := EffectiveMaxTokens(params.MaxTokens, reasoning)
	req.MaxCompletionTokens = param.NewOpt(int64(maxTokens))

	if params.ParallelToolCalls != nil {
		req.ParallelToolCalls = param.NewOpt(*params.ParallelToolCalls)
	}
	if reasoning.OpenAIEffort != "" {
		req.ReasoningEffort = shared.ReasoningEffort(reasoning.OpenAIEffort)
	}

	if len(params.Tools) > 0 {
		tools, err := toOpenAIChatTools(params.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		req.Tools = tools
		req.ToolChoice = toOpenAIChatToolChoice(params.ToolChoice, tools)
	}

	// Retried only up to the first successfully pulled chunk (spec.md
	// §4.2): once receivedAny flips true the attempt's failure is terminal,
	// so a retried attempt never re-emits a StreamPart the caller already
	// saw.
	policy := DefaultRetryPolicy()
	receivedAny := false
	var final *FinalMessage

	err = policy.Do(ctx, func(ctx context.Context) (int, bool, error) {
		stream := client.Chat.Completions.NewStreaming(ctx, req)

		toolCallBlockIndex := map[int64]int{}
		toolMeta := map[int]domain.ToolUse{}
		toolArgs := map[int]*strings.Builder{}
		blockOrder := []int{} // block indices in first-seen order, text or tool_use
		isToolBlock := map[int]bool{}
		textIndex := -1
		nextBlockIndex := 0
		var textBuilder strings.Builder
		var finishReason, responseModel string
		var usage domain.Usage

		for stream.Next() {
			receivedAny = true
			chunk := stream.Current()

			if chunk.Model != "" {
				responseModel = chunk.Model
			}

			if chunk.Usage.JSON.PromptTokens.Valid() {
				usage.InputTokens = int(chunk.Usage.PromptTokens)
				usage.OutputTokens = int(chunk.Usage.CompletionTokens)
				if chunk.Usage.PromptTokensDetails.CachedTokens > 0 {
					usage.CacheReadInputTokens = int(chunk.Usage.PromptTokensDetails.CachedTokens)
				}
				if f, ok := chunk.Usage.JSON.ExtraFields["cache_creation_input_tokens"]; ok {
					var n int
					if json.Unmarshal([]byte(f.Raw()), &n) == nil {
						usage.CacheWriteInputTokens = n
					}
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			delta := choice.Delta

			if delta.Content != "" {
				if textIndex < 0 {
					textIndex = nextBlockIndex
					nextBlockIndex++
					blockOrder = append(blockOrder, textIndex)
				}
				textBuilder.WriteString(delta.Content)
				partsChan <- StreamPart{Type: PartTextDelta, Delta: delta.Content}
			}

			for _, tc := range delta.ToolCalls {
				idx := tc.Index
				blockIdx, exists := toolCallBlockIndex[idx]
				if !exists {
					blockIdx = nextBlockIndex
					toolCallBlockIndex[idx] = blockIdx
					nextBlockIndex++
					blockOrder = append(blockOrder, blockIdx)
					isToolBlock[blockIdx] = true
					name := tc.Function.Name
					for _, prefix := range []string{"tools.", "tool.", "functions.", "function."} {
						name = strings.TrimPrefix(name, prefix)
					}
					tu := domain.ToolUse{ID: tc.ID, Name: name}
					toolMeta[blockIdx] = tu
					toolArgs[blockIdx] = &strings.Builder{}
					partsChan <- StreamPart{Type: PartToolCallStart, ToolCallID: tc.ID, ToolName: name}
				}
				if tc.Function.Arguments != "" {
					toolArgs[blockIdx].WriteString(tc.Function.Arguments)
				}
			}
		}

		if streamErr := stream.Err(); streamErr != nil {
			return openaiStatusCode(streamErr), receivedAny, wrapOpenAIChatError(streamErr)
		}

		for _, idx := range blockOrder {
			if !isToolBlock[idx] {
				continue
			}
			tu := toolMeta[idx]
			raw := toolArgs[idx].String()
			if raw == "" || !json.Valid([]byte(raw)) {
				raw = "{}"
			}
			tu.Arguments = json.RawMessage(raw)
			toolMeta[idx] = tu
			partsChan <- StreamPart{Type: PartToolCallComplete, ToolCall: &tu}
		}

		partsChan <- StreamPart{Type: PartUsage, Usage: &usage}

		if responseModel == "" {
			responseModel = model
		}
		if finishReason == "" {
			finishReason = "stop"
		}

		output := domain.Message{Role: domain.RoleAssistant}
		for _, idx := range blockOrder {
			if isToolBlock[idx] {
				tu := toolMeta[idx]
				output.Content = append(output.Content, domain.ContentBlock{Type: domain.ContentToolUse, ToolUse: &tu})
			} else {
				output.Content = append(output.Content, domain.ContentBlock{Type: domain.ContentText, Text: textBuilder.String()})
			}
		}

		final = &FinalMessage{
			Model:      responseModel,
			Provider:   string(FormatOpenAI),
			Output:     output,
			StopReason: finishReason,
			Usage:      usage,
		}
		return 0, true, nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

func toOpenAIChatMessages(messages []domain.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var result []openai.ChatCompletionMessageParamUnion

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			for _, block := range msg.Content {
				if block.Type == domain.ContentText {
					result = append(result, openai.ChatCompletionMessageParamUnion{
						OfSystem: &openai.ChatCompletionSystemMessageParam{
							Content: openai.ChatCompletionSystemMessageParamContentUnion{
								OfArrayOfContentParts: []openai.ChatCompletionContentPartTextParam{{Text: block.Text}},
							},
						},
					})
				}
			}

		case domain.RoleUser, domain.RoleTool:
			var userParts []openai.ChatCompletionContentPartUnionParam
			for _, block := range msg.Content {
				switch block.Type {
				case domain.ContentText:
					userParts = append(userParts, openai.ChatCompletionContentPartUnionParam{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: block.Text},
					})
				case domain.ContentImage:
					if block.Image == nil {
						return nil, fmt.Errorf("image block missing payload")
					}
					url := block.Image.URL
					if url == "" {
						return nil, fmt.Errorf("inline image data for OpenAI requires a pre-built data URL")
					}
					userParts = append(userParts, openai.ChatCompletionContentPartUnionParam{
						OfImageURL: &openai.ChatCompletionContentPartImageParam{
							ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: url, Detail: "high"},
						},
					})
				case domain.ContentToolResult:
					if block.ToolResult == nil {
						return nil, fmt.Errorf("tool_result block missing payload")
					}
					result = append(result, openai.ChatCompletionMessageParamUnion{
						OfTool: &openai.ChatCompletionToolMessageParam{
							ToolCallID: block.ToolResult.ToolUseID,
							Content: openai.ChatCompletionToolMessageParamContentUnion{
								OfString: param.NewOpt(block.ToolResult.Output),
							},
						},
					})
				default:
					return nil, fmt.Errorf("unsupported content block type %s for user role", block.Type)
				}
			}
			if len(userParts) > 0 {
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: userParts},
					},
				})
			}

		case domain.RoleAssistant:
			assistantMsg := &openai.ChatCompletionAssistantMessageParam{}
			var contentParts []openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion
			hasContent := false

			for _, block := range msg.Content {
				switch block.Type {
				case domain.ContentText:
					contentParts = append(contentParts, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: block.Text},
					})
					hasContent = true
				case domain.ContentToolUse:
					if block.ToolUse == nil {
						return nil, fmt.Errorf("tool_use block missing payload")
					}
					assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: block.ToolUse.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      block.ToolUse.Name,
								Arguments: string(block.ToolUse.Arguments),
							},
						},
					})
					hasContent = true
				case domain.ContentThinking, domain.ContentRedactedThinking:
					continue
				default:
					return nil, fmt.Errorf("unsupported content block type %s for assistant role", block.Type)
				}
			}

			if hasContent {
				if len(contentParts) == 1 && contentParts[0].OfText != nil {
					assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.NewOpt(contentParts[0].OfText.Text),
					}
				} else if len(contentParts) > 0 {
					assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
						OfArrayOfContentParts: contentParts,
					}
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: assistantMsg})
			}

		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}

	return result, nil
}

func toOpenAIChatTools(tools []domain.ToolDefinition) ([]openai.ChatCompletionToolUnionParam, error) {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: param.NewOpt(t.Description),
					Parameters:  schemaToFunctionParams(t.Parameters),
				},
			},
		})
	}
	return result, nil
}

func toOpenAIChatToolChoice(choice domain.ToolChoice, tools []openai.ChatCompletionToolUnionParam) openai.ChatCompletionToolChoiceOptionUnionParam {
	if len(tools) == 0 {
		return openai.ChatCompletionToolChoiceOptionUnionParam{}
	}
	switch choice.Type {
	case domain.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("required")}
	case domain.ToolChoiceTool:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}
}

// openaiStatusCode extracts the HTTP status code from an OpenAI SDK error
// so RetryPolicy can decide whether a pre-first-byte failure is retryable.
func openaiStatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// wrapOpenAIChatError surfaces the raw response body from OpenAI-compatible
// providers that don't match OpenAI's own error envelope.
func wrapOpenAIChatError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Message != "" {
		return fmt.Errorf("%s %q: %d %s (message: %s, code: %s)",
			apiErr.Request.Method, apiErr.Request.URL, apiErr.StatusCode, apiErr.Type, apiErr.Message, apiErr.Code)
	}
	dump := apiErr.DumpResponse(true)
	if len(dump) > 0 {
		body := dump
		for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
			if parts := bytes.SplitN(dump, sep, 2); len(parts) == 2 {
				body = bytes.TrimSpace(parts[1])
				break
			}
		}
		return fmt.Errorf("%s %q: %d - response body: %s", apiErr.Request.Method, apiErr.Request.URL, apiErr.StatusCode, string(body))
	}
	return err
}
