package sfnodes

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/sjson"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
	"github.com/blueberrycongee/sfnodes/providers/siliconflow"
)

// Capabilities describes what a chat model supports.
type Capabilities struct {
	SupportsTools bool
}

// ChatPrompt is the input of one chat model call.
type ChatPrompt struct {
	Messages   []types.ChatMessage
	Tools      []types.Tool
	ToolChoice json.RawMessage
	Stop       []string
}

// ChatReply is the first choice of a chat model call.
type ChatReply struct {
	Content      string
	Reasoning    string
	ToolCalls    []types.ToolCall
	FinishReason string
	Model        string
	Usage        *types.Usage
	Raw          json.RawMessage
}

// ChatModel is the adapter agent frameworks call.
type ChatModel interface {
	Complete(ctx context.Context, prompt ChatPrompt) (*ChatReply, error)
	Capabilities() Capabilities
}

// ChatModelOptions configures a SiliconFlowChatModel.
// Start from DefaultChatModelOptions and override what you need.
type ChatModelOptions struct {
	FrequencyPenalty float64
	PresencePenalty  float64
	// MaxTokens of -1 or 0 leaves the limit to the API.
	MaxTokens   int
	Temperature float64
	TopP        float64
	// TopK is sent only when set.
	TopK *int
	// Timeout bounds each attempt.
	Timeout    time.Duration
	MaxRetries int
	// RetryBackoff is the first retry delay; it doubles on every attempt.
	RetryBackoff time.Duration
	// EnableThinking only takes effect for reasoning models (QwQ, R1).
	EnableThinking bool
	ThinkingBudget int
	// ModelKwargs are extra top-level body fields, set after all others.
	ModelKwargs map[string]any
}

// DefaultChatModelOptions returns the adapter defaults.
func DefaultChatModelOptions() ChatModelOptions {
	return ChatModelOptions{
		MaxTokens:      -1,
		Temperature:    0.7,
		TopP:           1,
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   time.Second,
		ThinkingBudget: 4096,
	}
}

// SiliconFlowChatModel implements ChatModel over a Client.
type SiliconFlowChatModel struct {
	client *Client
	model  string
	opts   ChatModelOptions
}

var _ ChatModel = (*SiliconFlowChatModel)(nil)

// NewChatModel creates a chat model adapter for model.
func NewChatModel(client *Client, model string, opts ChatModelOptions) (*SiliconFlowChatModel, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if err := validateModel(model); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ThinkingBudget <= 0 {
		opts.ThinkingBudget = 4096
	}
	return &SiliconFlowChatModel{client: client, model: model, opts: opts}, nil
}

// Model returns the model ID.
func (m *SiliconFlowChatModel) Model() string {
	return m.model
}

// Capabilities implements ChatModel.
func (m *SiliconFlowChatModel) Capabilities() Capabilities {
	return Capabilities{SupportsTools: true}
}

// SupportsThinking reports whether model accepts enable_thinking.
func SupportsThinking(model string) bool {
	return strings.Contains(model, "QwQ") || strings.Contains(model, "R1")
}

// maxRetryBackoff caps the delay between two chat model attempts.
const maxRetryBackoff = 30 * time.Second

// retryDelay returns the wait before attempt (1-based): base doubled per
// previous attempt, capped at maxRetryBackoff.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt && d < maxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, maxRetryBackoff)
}

// Complete implements ChatModel. Errors marked retryable are retried with
// exponential backoff up to MaxRetries times.
func (m *SiliconFlowChatModel) Complete(ctx context.Context, prompt ChatPrompt) (*ChatReply, error) {
	if len(prompt.Messages) == 0 {
		return nil, errors.NewValidationError("At least one message is required")
	}

	payload, err := m.buildPayload(prompt)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay(m.opts.RetryBackoff, attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		reply, err := m.completeOnce(ctx, payload)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return nil, err
		}
		m.client.logger.Debug("retrying chat model call",
			"model", m.model,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, lastErr
}

func (m *SiliconFlowChatModel) completeOnce(ctx context.Context, payload []byte) (*ChatReply, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	httpResp, err := m.client.transport.Post(ctx, siliconflow.ChatEndpoint, payload, m.model)
	if err != nil {
		return nil, err
	}

	resp, raw, err := decodeChatResponse(httpResp, m.model)
	if err != nil {
		return nil, err
	}
	choice, err := firstChoice(resp)
	if err != nil {
		return nil, err
	}

	return &ChatReply{
		Content:      choice.Message.Content,
		Reasoning:    choice.Message.ReasoningContent,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Model:        resp.Model,
		Usage:        resp.Usage,
		Raw:          raw,
	}, nil
}

// buildPayload marshals the OpenAI-compatible fields, then patches in the
// SiliconFlow-only kwargs.
func (m *SiliconFlowChatModel) buildPayload(prompt ChatPrompt) ([]byte, error) {
	req := types.ChatRequest{
		Model:            m.model,
		Messages:         prompt.Messages,
		Temperature:      Ptr(m.opts.Temperature),
		TopP:             Ptr(m.opts.TopP),
		FrequencyPenalty: Ptr(m.opts.FrequencyPenalty),
		PresencePenalty:  Ptr(m.opts.PresencePenalty),
		Stop:             prompt.Stop,
		Tools:            prompt.Tools,
		ToolChoice:       prompt.ToolChoice,
	}
	if m.opts.MaxTokens > 0 {
		req.MaxTokens = Ptr(m.opts.MaxTokens)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat model request: %w", err)
	}

	for _, kv := range m.kwargs() {
		if payload, err = sjson.SetBytes(payload, kv.key, kv.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", kv.key, err)
		}
	}
	return payload, nil
}

type kwarg struct {
	key   string
	value any
}

func (m *SiliconFlowChatModel) kwargs() []kwarg {
	var out []kwarg
	if m.opts.EnableThinking && SupportsThinking(m.model) {
		out = append(out,
			kwarg{"enable_thinking", true},
			kwarg{"thinking_budget", m.opts.ThinkingBudget},
		)
	}
	if m.opts.TopK != nil {
		out = append(out, kwarg{"top_k", *m.opts.TopK})
	}

	keys := make([]string, 0, len(m.opts.ModelKwargs))
	for k := range m.opts.ModelKwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, kwarg{k, m.opts.ModelKwargs[k]})
	}
	return out
}

// BoundChatModel is a chat model with a fixed tool list. It is immutable:
// binding again returns a new value and never changes the receiver.
type BoundChatModel struct {
	model ChatModel
	tools []types.Tool
}

var _ ChatModel = BoundChatModel{}

// BindTools returns model with tools appended to every prompt.
func BindTools(model ChatModel, tools ...types.Tool) BoundChatModel {
	return BoundChatModel{model: model, tools: slices.Clone(tools)}
}

// Tools returns a copy of the bound tools.
func (b BoundChatModel) Tools() []types.Tool {
	return slices.Clone(b.tools)
}

// Complete implements ChatModel.
func (b BoundChatModel) Complete(ctx context.Context, prompt ChatPrompt) (*ChatReply, error) {
	tools := make([]types.Tool, 0, len(prompt.Tools)+len(b.tools))
	tools = append(tools, prompt.Tools...)
	tools = append(tools, b.tools...)
	prompt.Tools = tools
	return b.model.Complete(ctx, prompt)
}

// Capabilities implements ChatModel.
func (b BoundChatModel) Capabilities() Capabilities {
	return b.model.Capabilities()
}
