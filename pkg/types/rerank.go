package types

// RerankRequest is the POST body for /rerank.
type RerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      *int     `json:"top_n,omitempty"`
	// ReturnDocuments asks the API to echo each document in its result.
	ReturnDocuments *bool `json:"return_documents,omitempty"`
	// MaxChunksPerDoc and OverlapTokens only apply to BGE/Youdao rerankers.
	MaxChunksPerDoc *int `json:"max_chunks_per_doc,omitempty"`
	OverlapTokens   *int `json:"overlap_tokens,omitempty"`
}

// RerankResponse is the /rerank response body. Results are sorted by
// relevance, most relevant first.
type RerankResponse struct {
	ID      string         `json:"id"`
	Results []RerankResult `json:"results"`
	Tokens  *RerankTokens  `json:"tokens,omitempty"`
}

// RerankResult scores one input document.
type RerankResult struct {
	Index          int             `json:"index"`
	RelevanceScore float64         `json:"relevance_score"`
	Document       *RerankDocument `json:"document,omitempty"`
}

// RerankDocument is the echoed document when return_documents is set.
type RerankDocument struct {
	Text string `json:"text"`
}

// RerankTokens is the token accounting reported by /rerank.
type RerankTokens struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
