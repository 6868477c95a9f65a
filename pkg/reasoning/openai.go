package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/signalmusic/conductor/pkg/session"
)

// OpenAIClient implements Client for OpenAI-compatible endpoints, including
// OpenRouter when a base URL is set.
type OpenAIClient struct {
	client openai.Client
	opts   Options
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(apiKey, baseURL string, opts Options) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

// Provider returns the provider name
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Converse sends the conversation and returns the terminal outcome
func (c *OpenAIClient) Converse(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Outcome, error) {
	params, err := c.buildParams(history, actions, policy)
	if err != nil {
		return nil, err
	}

	response, err := c.client.Chat.Completions.New(ctx, *params)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	return outcomeFromMessage(response.Choices[0].Message)
}

// ConverseStream performs the same call but delivers fragments incrementally
func (c *OpenAIClient) ConverseStream(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Stream, error) {
	params, err := c.buildParams(history, actions, policy)
	if err != nil {
		return nil, err
	}

	stream := NewStream("")
	go func() {
		raw := c.client.Chat.Completions.NewStreaming(ctx, *params)
		defer raw.Close()
		acc := openai.ChatCompletionAccumulator{}

		for raw.Next() {
			chunk := raw.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !stream.Push(delta) {
					break
				}
			}
		}
		if err := raw.Err(); err != nil {
			stream.Finish(nil, err)
			return
		}
		if len(acc.Choices) == 0 {
			stream.Finish(nil, fmt.Errorf("no response choices returned"))
			return
		}

		outcome, err := outcomeFromMessage(acc.Choices[0].Message)
		stream.Finish(outcome, err)
	}()

	return stream, nil
}

// buildParams converts the conversation into OpenAI request parameters
func (c *OpenAIClient) buildParams(history []session.Message, actions []ActionSchema, policy string) (*openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if policy != "" {
		messages = append(messages, openai.SystemMessage(policy))
	}

	for _, msg := range history {
		switch msg.Role {
		case session.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case session.RoleAssistant:
			if len(msg.Requests) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, req := range msg.Requests {
					argsJSON, err := json.Marshal(req.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to marshal action arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   req.CallID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      req.Name,
							Arguments: string(argsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case session.RoleActionResult:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.CallID))
		}
	}

	params := &openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.opts.Model),
		Messages: messages,
	}

	if c.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	if c.opts.Temperature > 0 {
		params.Temperature = openai.Float(c.opts.Temperature)
	}

	if len(actions) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, action := range actions {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        action.Name,
					Description: openai.String(action.Description),
					Parameters:  openai.FunctionParameters(action.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}

// outcomeFromMessage extracts text and action requests from a completion
func outcomeFromMessage(msg openai.ChatCompletionMessage) (*Outcome, error) {
	requests := []session.ActionRequest{}
	for _, tc := range msg.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse action arguments: %w", err)
		}
		requests = append(requests, session.ActionRequest{
			CallID: tc.ID,
			Name:   tc.Function.Name,
			Args:   args,
		})
	}

	return &Outcome{
		Text:     msg.Content,
		Requests: requests,
	}, nil
}
