package reasoning

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/store"
)

var ErrNoChoices = errors.New("model returned no choices")

// OpenAI is a Model backed by any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client          openai.Client
	model           string
	reasoningEffort string
}

// NewOpenAI builds a client from config. The API key is read from the
// environment variable the config names.
func NewOpenAI(cfg store.ModelConfig, opts ...option.RequestOption) *OpenAI {
	options := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		options = append(options, option.WithAPIKey(key))
	}
	options = append(options, opts...)
	return &OpenAI{
		client:          openai.NewClient(options...),
		model:           cfg.Name,
		reasoningEffort: cfg.ReasoningEffort,
	}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (session.Message, error) {
	param := openai.ChatCompletionNewParams{Model: o.model}
	if o.reasoningEffort != "" {
		param.ReasoningEffort = shared.ReasoningEffort(o.reasoningEffort)
	}
	if req.System != "" {
		param.Messages = append(param.Messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		param.Messages = append(param.Messages, toParam(m))
	}
	for _, t := range req.Tools {
		param.Tools = append(param.Tools, toolParam(t))
	}

	completion, err := o.client.Chat.Completions.New(ctx, param)
	if err != nil {
		return session.Message{}, err
	}
	if len(completion.Choices) == 0 {
		return session.Message{}, ErrNoChoices
	}

	msg := completion.Choices[0].Message
	out := session.Message{Role: session.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, session.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func toParam(m session.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case session.RoleAssistant:
		p := openai.AssistantMessage(m.Content)
		for _, tc := range m.ToolCalls {
			p.OfAssistant.ToolCalls = append(p.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID:       tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{Name: tc.Name, Arguments: tc.Arguments},
				},
			})
		}
		return p
	case session.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	default:
		return openai.UserMessage(m.Content)
	}
}

func toolParam(t ToolSpec) openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		},
	}
}

// String identifies the model in logs.
func (o *OpenAI) String() string {
	return fmt.Sprintf("openai:%s", o.model)
}
