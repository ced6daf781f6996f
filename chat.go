package sfnodes

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

const errNoModelResponse = "No response received from the model"

// BuildChatRequest builds the /chat/completions body for cfg.
// Non-empty Messages are sent verbatim; otherwise Prompt becomes one user message.
func BuildChatRequest(cfg *ChatConfig) (*types.ChatRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	req := &types.ChatRequest{Model: cfg.Model}
	if len(cfg.Messages) > 0 {
		req.Messages = make([]types.ChatMessage, 0, len(cfg.Messages))
		for _, m := range cfg.Messages {
			req.Messages = append(req.Messages, types.NewTextMessage(m.Role, m.Content))
		}
	} else {
		req.Messages = []types.ChatMessage{types.NewTextMessage("user", cfg.Prompt)}
	}

	applyChatParams(req, cfg.Params)
	return req, nil
}

// applyChatParams copies only the parameters the user set.
func applyChatParams(req *types.ChatRequest, p ChatParams) {
	req.MaxTokens = p.MaxTokens
	req.Temperature = p.Temperature
	req.TopP = p.TopP
	req.TopK = p.TopK
	req.MinP = p.MinP
	req.FrequencyPenalty = p.FrequencyPenalty
	req.N = p.N
	req.EnableThinking = p.EnableThinking
	req.ThinkingBudget = p.ThinkingBudget
	req.Stream = p.Stream

	if stop := SplitStop(p.Stop); len(stop) > 0 {
		req.Stop = stop
	}
	if p.ResponseFormat != "" {
		req.ResponseFormat = &types.ResponseFormat{Type: p.ResponseFormat}
	}
}

// SplitStop splits a comma-separated stop list, trimming each entry and
// dropping empty ones. It returns nil when nothing is left.
func SplitStop(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ChatDetailedOutput is the detailed-mode chat record.
type ChatDetailedOutput struct {
	Message      string           `json:"message"`
	Model        string           `json:"model"`
	FinishReason string           `json:"finishReason"`
	Usage        *types.Usage     `json:"usage,omitempty"`
	Reasoning    string           `json:"reasoning,omitempty"`
	ToolCalls    []types.ToolCall `json:"toolCalls,omitempty"`
	RawResponse  json.RawMessage  `json:"_rawResponse"`
}

// ShapeChatResponse projects resp according to mode. Simple mode yields the
// content string itself; detailed mode yields a *ChatDetailedOutput.
func ShapeChatResponse(resp *types.ChatResponse, raw json.RawMessage, mode OutputMode) (any, error) {
	choice, err := firstChoice(resp)
	if err != nil {
		return nil, err
	}

	switch mode {
	case "", OutputSimple:
		return choice.Message.Content, nil
	case OutputDetailed:
		return &ChatDetailedOutput{
			Message:      choice.Message.Content,
			Model:        resp.Model,
			FinishReason: choice.FinishReason,
			Usage:        resp.Usage,
			Reasoning:    choice.Message.ReasoningContent,
			ToolCalls:    choice.Message.ToolCalls,
			RawResponse:  raw,
		}, nil
	default:
		return nil, errors.Validationf("Unsupported output mode %q (expected simple or detailed)", mode)
	}
}

func firstChoice(resp *types.ChatResponse) (*types.Choice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		model := ""
		if resp != nil {
			model = resp.Model
		}
		return nil, errors.NewNoResponseError(model, errNoModelResponse)
	}
	return &resp.Choices[0], nil
}
