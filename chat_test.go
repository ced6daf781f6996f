package sfnodes

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

func bodyKeys(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestBuildChatRequest_RequiresMessagesOrPrompt(t *testing.T) {
	tests := []struct {
		name string
		cfg  ChatConfig
	}{
		{"nil messages", ChatConfig{Model: DefaultChatModel}},
		{"empty messages", ChatConfig{Model: DefaultChatModel, Messages: []Message{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildChatRequest(&tt.cfg)
			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			assert.Equal(t, "Either messages or prompt must be provided", err.Error())
		})
	}
}

func TestBuildChatRequest_MessagesWinOverPrompt(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}
	req, err := BuildChatRequest(&ChatConfig{Model: DefaultChatModel, Messages: msgs, Prompt: "ignored"})
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	for i, m := range msgs {
		assert.Equal(t, m.Role, req.Messages[i].Role)
		assert.Equal(t, m.Content, req.Messages[i].Text())
	}
}

func TestBuildChatRequest_PromptBecomesUserMessage(t *testing.T) {
	req, err := BuildChatRequest(&ChatConfig{Model: DefaultChatModel, Prompt: "hello"})
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "hello", req.Messages[0].Text())
}

func TestBuildChatRequest_OmitsUnsetParameters(t *testing.T) {
	req, err := BuildChatRequest(&ChatConfig{Model: DefaultChatModel, Prompt: "hello"})
	require.NoError(t, err)

	body := bodyKeys(t, req)
	assert.Len(t, body, 2)
	assert.Contains(t, body, "model")
	assert.Contains(t, body, "messages")
}

func TestBuildChatRequest_CopiesSetParameters(t *testing.T) {
	req, err := BuildChatRequest(&ChatConfig{
		Model:  "Qwen/QwQ-32B",
		Prompt: "hello",
		Params: ChatParams{
			MaxTokens:      Ptr(512),
			Temperature:    Ptr(0.0),
			TopK:           Ptr(50),
			EnableThinking: Ptr(false),
			ThinkingBudget: Ptr(1024),
			Stream:         Ptr(false),
			ResponseFormat: "json_object",
		},
	})
	require.NoError(t, err)

	body := bodyKeys(t, req)
	assert.EqualValues(t, 512, body["max_tokens"])
	assert.EqualValues(t, 0, body["temperature"])
	assert.EqualValues(t, 50, body["top_k"])
	assert.Equal(t, false, body["enable_thinking"])
	assert.EqualValues(t, 1024, body["thinking_budget"])
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	assert.NotContains(t, body, "top_p")
	assert.NotContains(t, body, "min_p")
	assert.NotContains(t, body, "n")
	assert.NotContains(t, body, "stop")
}

func TestSplitStop(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a, b ,,c", []string{"a", "b", "c"}},
		{"", nil},
		{",, ,", nil},
		{"END", []string{"END"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitStop(tt.in), tt.in)
	}
}

func TestBuildChatRequest_StopKey(t *testing.T) {
	req, err := BuildChatRequest(&ChatConfig{Model: DefaultChatModel, Prompt: "x", Params: ChatParams{Stop: "a, b ,,c"}})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, bodyKeys(t, req)["stop"])

	for _, stop := range []string{"", ",, ,"} {
		req, err := BuildChatRequest(&ChatConfig{Model: DefaultChatModel, Prompt: "x", Params: ChatParams{Stop: stop}})
		require.NoError(t, err)
		assert.NotContains(t, bodyKeys(t, req), "stop")
	}
}

func TestChatConfig_RejectsUnknownOutputMode(t *testing.T) {
	err := (&ChatConfig{Model: DefaultChatModel, Prompt: "x", OutputMode: "verbose"}).Validate()
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func chatResponse(t *testing.T) (*types.ChatResponse, json.RawMessage) {
	t.Helper()
	raw := json.RawMessage(`{
		"model": "Qwen/QwQ-32B",
		"choices": [{"message": {"role": "assistant", "content": "hello", "reasoning_content": "because",
			"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "f", "arguments": "{}"}}]},
			"finish_reason": "tool_calls"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}
	}`)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return &resp, raw
}

func TestShapeChatResponse_SimpleIsBareString(t *testing.T) {
	resp, raw := chatResponse(t)

	out, err := ShapeChatResponse(resp, raw, OutputSimple)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, string(data))
}

func TestShapeChatResponse_Detailed(t *testing.T) {
	resp, raw := chatResponse(t)

	out, err := ShapeChatResponse(resp, raw, OutputDetailed)
	require.NoError(t, err)

	detailed, ok := out.(*ChatDetailedOutput)
	require.True(t, ok)
	assert.Equal(t, "hello", detailed.Message)
	assert.Equal(t, "Qwen/QwQ-32B", detailed.Model)
	assert.Equal(t, "tool_calls", detailed.FinishReason)
	assert.Equal(t, "because", detailed.Reasoning)
	require.Len(t, detailed.ToolCalls, 1)
	assert.Equal(t, 3, detailed.Usage.TotalTokens)
	assert.JSONEq(t, string(raw), string(detailed.RawResponse))
}

func TestShapeChatResponse_DetailedOmitsEmptyReasoningAndTools(t *testing.T) {
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(chatReplyJSON), &resp))

	out, err := ShapeChatResponse(&resp, json.RawMessage(chatReplyJSON), OutputDetailed)
	require.NoError(t, err)

	body := bodyKeys(t, out)
	assert.NotContains(t, body, "reasoning")
	assert.NotContains(t, body, "toolCalls")
	assert.Contains(t, body, "_rawResponse")
}

func TestShapeChatResponse_NoChoice(t *testing.T) {
	_, err := ShapeChatResponse(&types.ChatResponse{Model: "m"}, json.RawMessage(`{}`), OutputSimple)
	require.Error(t, err)
	assert.Equal(t, errors.KindNoResponse, errors.KindOf(err))
	assert.Equal(t, "No response received from the model", err.Error())
}
