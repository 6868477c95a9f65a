package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/signalmusic/conductor/pkg/session"
)

// AnthropicClient implements Client for Anthropic Claude
type AnthropicClient struct {
	client anthropic.Client
	opts   Options
}

// NewAnthropicClient creates a new Anthropic client
func NewAnthropicClient(apiKey string, opts Options) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		opts:   opts,
	}
}

// Provider returns the provider name
func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

// Converse sends the conversation and returns the terminal outcome
func (c *AnthropicClient) Converse(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Outcome, error) {
	params := c.buildParams(history, actions, policy)

	response, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	return outcomeFromBlocks(response.Content)
}

// ConverseStream performs the same call but delivers fragments incrementally
func (c *AnthropicClient) ConverseStream(ctx context.Context, history []session.Message, actions []ActionSchema, policy string) (*Stream, error) {
	params := c.buildParams(history, actions, policy)

	stream := NewStream("")
	go func() {
		raw := c.client.Messages.NewStreaming(ctx, params)
		defer raw.Close()
		message := anthropic.Message{}

	loop:
		for raw.Next() {
			event := raw.Current()
			if err := message.Accumulate(event); err != nil {
				stream.Finish(nil, fmt.Errorf("failed to accumulate event: %w", err))
				return
			}

			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text != "" {
						if !stream.Push(delta.Text) {
							break loop
						}
					}
				}
			}
		}

		if err := raw.Err(); err != nil {
			stream.Finish(nil, err)
			return
		}

		outcome, err := outcomeFromBlocks(message.Content)
		stream.Finish(outcome, err)
	}()

	return stream, nil
}

// buildParams converts the conversation into Anthropic request parameters
func (c *AnthropicClient) buildParams(history []session.Message, actions []ActionSchema, policy string) anthropic.MessageNewParams {
	messages := []anthropic.MessageParam{}

	for _, msg := range history {
		switch msg.Role {
		case session.RoleActionResult:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.CallID, msg.Content, false),
			))
		case session.RoleAssistant:
			if len(msg.Requests) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, req := range msg.Requests {
					blocks = append(blocks, anthropic.NewToolUseBlock(req.CallID, req.Args, req.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}
		case session.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		Messages:  messages,
		MaxTokens: int64(c.opts.MaxTokens),
	}

	if policy != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: policy},
		}
	}
	if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(c.opts.Temperature)
	}

	if len(actions) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, action := range actions {
			toolParam := anthropic.ToolParam{
				Name:        action.Name,
				Description: anthropic.String(action.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: action.InputSchema["properties"],
				},
			}

			if required, ok := action.InputSchema["required"]; ok {
				switch req := required.(type) {
				case []string:
					toolParam.InputSchema.Required = req
				case []interface{}:
					strs := make([]string, len(req))
					for i, v := range req {
						strs[i], _ = v.(string)
					}
					toolParam.InputSchema.Required = strs
				}
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params
}

// outcomeFromBlocks extracts text and action requests from response content
func outcomeFromBlocks(blocks []anthropic.ContentBlockUnion) (*Outcome, error) {
	text := ""
	requests := []session.ActionRequest{}

	for _, block := range blocks {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse action input: %w", err)
			}
			requests = append(requests, session.ActionRequest{
				CallID: b.ID,
				Name:   b.Name,
				Args:   args,
			})
		}
	}

	return &Outcome{
		Text:     text,
		Requests: requests,
	}, nil
}
