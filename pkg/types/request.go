// Package types defines the wire structures exchanged with the SiliconFlow API.
// Request bodies follow the OpenAI Chat Completion format plus SiliconFlow
// extensions (top_k, min_p, enable_thinking, thinking_budget).
package types //nolint:revive // package name is intentional

import "github.com/goccy/go-json"

// ChatRequest is the POST body for /chat/completions.
// Optional parameters are pointers: nil is omitted, a set zero value is sent.
type ChatRequest struct {
	Model            string          `json:"model"`
	Messages         []ChatMessage   `json:"messages"`
	Stream           *bool           `json:"stream,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	MinP             *float64        `json:"min_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	N                *int            `json:"n,omitempty"`
	EnableThinking   *bool           `json:"enable_thinking,omitempty"`
	ThinkingBudget   *int            `json:"thinking_budget,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
}

// Streaming reports whether the request asks for an SSE response.
func (r *ChatRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// ChatMessage represents a single message in the conversation.
// Content is either a JSON string or an array of ContentPart.
type ChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// NewTextMessage builds a message with plain string content.
func NewTextMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Content: TextContent(text)}
}

// NewPartsMessage builds a multimodal message.
func NewPartsMessage(role string, parts []ContentPart) ChatMessage {
	return ChatMessage{Role: role, Content: PartsContent(parts)}
}

// Text returns the string content of the message, or "" for multimodal content.
func (m ChatMessage) Text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err != nil {
		return ""
	}
	return s
}

// Parts decodes multimodal content. It returns nil for string content.
func (m ChatMessage) Parts() []ContentPart {
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil
	}
	return parts
}

// TextContent encodes s as message content.
func TextContent(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// PartsContent encodes parts as message content.
func PartsContent(parts []ContentPart) json.RawMessage {
	data, _ := json.Marshal(parts)
	return data
}

// Content part types.
const (
	ContentTypeText     = "text"
	ContentTypeImageURL = "image_url"
)

// ContentPart is one block of multimodal message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Tool represents a function that the model can call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall represents a function call made by the model.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction contains the function name and arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseFormat specifies the output format for the model.
type ResponseFormat struct {
	Type string `json:"type"`
}
