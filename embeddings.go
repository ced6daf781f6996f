package sfnodes

import (
	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// BuildEmbeddingsRequest builds the /embeddings body for cfg.
func BuildEmbeddingsRequest(cfg *EmbeddingsConfig) (*types.EmbeddingRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	input := cfg.Input
	return &types.EmbeddingRequest{
		Model:          cfg.Model,
		Input:          &input,
		EncodingFormat: cfg.EncodingFormat,
	}, nil
}

// EmbeddingsOutput is the embeddings/create record.
type EmbeddingsOutput struct {
	// Embeddings holds one vector per data entry, in the order returned.
	Embeddings  []types.Embedding `json:"embeddings"`
	Model       string            `json:"model"`
	Usage       *types.Usage      `json:"usage,omitempty"`
	RawResponse json.RawMessage   `json:"_rawResponse"`
}

// ShapeEmbeddingsResponse projects an embeddings response.
func ShapeEmbeddingsResponse(resp *types.EmbeddingResponse, raw json.RawMessage) *EmbeddingsOutput {
	out := &EmbeddingsOutput{
		Embeddings:  make([]types.Embedding, 0, len(resp.Data)),
		Model:       resp.Model,
		Usage:       resp.Usage,
		RawResponse: raw,
	}
	for _, d := range resp.Data {
		out.Embeddings = append(out.Embeddings, d.Embedding)
	}
	return out
}
