package siliconflow

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// maxStreamIndex bounds choice and tool call indexes taken from the stream.
const maxStreamIndex = 128

var (
	errEmptyStream = fmt.Errorf("event stream contained no data events")

	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// ParseStreamChunk parses a single SSE line.
// Returns nil, nil for keep-alive, comment, non-data and [DONE] lines.
func ParseStreamChunk(line []byte, model string) (*types.StreamChunk, error) {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, dataPrefix) {
		return nil, nil
	}
	trimmed = bytes.TrimSpace(bytes.TrimPrefix(trimmed, dataPrefix))
	if len(trimmed) == 0 || bytes.Equal(trimmed, doneMarker) {
		return nil, nil
	}

	// Errors raised mid-stream arrive as a data event with an error envelope.
	if gjson.GetBytes(trimmed, "error").Exists() {
		msg := gjson.GetBytes(trimmed, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(trimmed, "error").String()
		}
		return nil, errors.NewRemoteAPIError(int(gjson.GetBytes(trimmed, "error.code").Int()), model, msg)
	}

	var chunk types.StreamChunk
	if err := json.Unmarshal(trimmed, &chunk); err != nil {
		return nil, errors.NewMalformedResponseError(200, model, err)
	}
	return &chunk, nil
}

// AggregateStream folds a complete SSE body into a single chat response,
// concatenating content, reasoning and tool call fragments per choice.
func AggregateStream(body []byte, model string) (*types.ChatResponse, error) {
	type choiceState struct {
		role         string
		content      strings.Builder
		reasoning    strings.Builder
		finishReason string
		toolCalls    []types.ToolCall
	}

	resp := &types.ChatResponse{Object: "chat.completion"}
	var states []*choiceState
	seen := false

	for _, line := range bytes.Split(body, []byte("\n")) {
		chunk, err := ParseStreamChunk(line, model)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		seen = true

		if resp.ID == "" {
			resp.ID = chunk.ID
			resp.Created = chunk.Created
			resp.Model = chunk.Model
			resp.SystemFingerprint = chunk.SystemFingerprint
		}
		if chunk.Usage != nil {
			resp.Usage = chunk.Usage
		}

		for _, sc := range chunk.Choices {
			if sc.Index < 0 || sc.Index >= maxStreamIndex {
				return nil, errors.NewMalformedResponseError(200, model, fmt.Errorf("choice index %d out of range", sc.Index))
			}
			for len(states) <= sc.Index {
				states = append(states, &choiceState{})
			}
			st := states[sc.Index]
			if sc.Delta.Role != "" {
				st.role = sc.Delta.Role
			}
			st.content.WriteString(sc.Delta.Content)
			st.reasoning.WriteString(sc.Delta.ReasoningContent)
			if sc.FinishReason != nil && *sc.FinishReason != "" {
				st.finishReason = *sc.FinishReason
			}
			for _, frag := range sc.Delta.ToolCalls {
				if frag.Index < 0 || frag.Index >= maxStreamIndex {
					return nil, errors.NewMalformedResponseError(200, model, fmt.Errorf("tool call index %d out of range", frag.Index))
				}
				for len(st.toolCalls) <= frag.Index {
					st.toolCalls = append(st.toolCalls, types.ToolCall{})
				}
				tc := &st.toolCalls[frag.Index]
				if frag.ID != "" {
					tc.ID = frag.ID
				}
				if frag.Type != "" {
					tc.Type = frag.Type
				}
				tc.Function.Name += frag.Function.Name
				tc.Function.Arguments += frag.Function.Arguments
			}
		}
	}

	if !seen {
		return nil, errors.NewMalformedResponseError(200, model, errEmptyStream)
	}

	for i, st := range states {
		role := st.role
		if role == "" {
			role = "assistant"
		}
		resp.Choices = append(resp.Choices, types.Choice{
			Index: i,
			Message: types.ResponseMessage{
				Role:             role,
				Content:          st.content.String(),
				ReasoningContent: st.reasoning.String(),
				ToolCalls:        st.toolCalls,
			},
			FinishReason: st.finishReason,
		})
	}
	return resp, nil
}
