// Package sfnodes runs SiliconFlow (硅基流动) workflow node items as a Go library.
//
// Each host item carries one request configuration (chat, vision, embeddings
// or rerank). The client builds the outbound JSON body, posts it to the
// matching API route and shapes the response into one output record per
// item, in item order.
//
// Basic usage:
//
//	client, err := sfnodes.New(
//	    sfnodes.WithCredentials(provider.Credentials{
//	        APIKey: os.Getenv("SILICONFLOW_API_KEY"),
//	    }),
//	    sfnodes.WithContinueOnFail(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	records, err := client.Execute(ctx, []sfnodes.Item{
//	    {Config: &sfnodes.ChatConfig{Model: "THUDM/glm-4-plus", Prompt: "Hello!"}},
//	})
package sfnodes

import (
	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/provider"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// Version is the current version of sfnodes.
const Version = "1.0.0"

// Resource selects the API route and the shaping rules for an item.
type Resource string

const (
	ResourceChat       Resource = "chat"
	ResourceVision     Resource = "vision"
	ResourceEmbeddings Resource = "embeddings"
	ResourceRerank     Resource = "rerank"
)

// Default models used when a host item leaves the model parameter empty.
const (
	DefaultChatModel       = "THUDM/glm-4-plus"
	DefaultEmbeddingsModel = "BAAI/bge-large-zh-v1.5"
	DefaultRerankModel     = "BAAI/bge-reranker-v2-m3"
)

// Re-export the types callers touch most often.
type (
	// Credentials is the API key and base URL pair read once per batch.
	Credentials = provider.Credentials

	// Error is the single error type surfaced by builders, shapers and the transport.
	Error = errors.Error

	// Tool is a function definition offered to the model.
	Tool = types.Tool

	// ToolCall is a function call requested by the model.
	ToolCall = types.ToolCall

	// Usage is the token accounting of a chat or embeddings call.
	Usage = types.Usage
)

// Ptr returns a pointer to v. It is a convenience for optional parameters.
func Ptr[T any](v T) *T {
	return &v
}
