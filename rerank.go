package sfnodes

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

const errNoDocuments = "At least one document must be provided"

// ParseDocuments splits a document list typed into a single field. Input that
// contains a newline is split on newlines, anything else on commas; entries are
// trimmed and empty ones dropped.
//
// A single line holding one document with commas in it is therefore split
// into several documents. Callers that need commas inside a document must
// put one document per line or pass RerankConfig.Documents directly.
func ParseDocuments(s string) ([]string, error) {
	sep := ","
	if strings.Contains(s, "\n") {
		sep = "\n"
	}

	var docs []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			docs = append(docs, part)
		}
	}
	if len(docs) == 0 {
		return nil, errors.NewValidationError(errNoDocuments)
	}
	return docs, nil
}

// BuildRerankRequest builds the /rerank body for cfg.
func BuildRerankRequest(cfg *RerankConfig) (*types.RerankRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &types.RerankRequest{
		Model:           cfg.Model,
		Query:           cfg.Query,
		Documents:       cfg.Documents,
		TopN:            cfg.Params.TopN,
		ReturnDocuments: cfg.Params.ReturnDocuments,
		MaxChunksPerDoc: cfg.Params.MaxChunksPerDoc,
		OverlapTokens:   cfg.Params.OverlapTokens,
	}, nil
}

// RerankOutput is the rerank/create record.
type RerankOutput struct {
	// Results keep the order the API returned them in.
	Results        []types.RerankResult `json:"results"`
	Query          string               `json:"query"`
	DocumentsCount int                  `json:"documentsCount"`
	Usage          *types.RerankTokens  `json:"usage,omitempty"`
	RawResponse    json.RawMessage      `json:"_rawResponse"`
}

// ShapeRerankResponse projects a rerank response for cfg.
func ShapeRerankResponse(resp *types.RerankResponse, raw json.RawMessage, cfg *RerankConfig) *RerankOutput {
	results := resp.Results
	if results == nil {
		results = []types.RerankResult{}
	}
	return &RerankOutput{
		Results:        results,
		Query:          cfg.Query,
		DocumentsCount: len(cfg.Documents),
		Usage:          resp.Tokens,
		RawResponse:    raw,
	}
}
