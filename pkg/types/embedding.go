package types

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// EmbeddingInput is the input of an embedding request: a single string or
// an array of strings.
type EmbeddingInput struct {
	// Text is a single string input.
	Text *string `json:"-"`
	// Texts is an array of string inputs.
	Texts []string `json:"-"`
}

// UnmarshalJSON accepts a string or an array of strings.
func (e *EmbeddingInput) UnmarshalJSON(data []byte) error {
	e.Text = nil
	e.Texts = nil

	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("input cannot be null")
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Text = &s
		return nil
	}

	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		e.Texts = ss
		return nil
	}

	return fmt.Errorf("input must be a string or an array of strings")
}

// MarshalJSON enforces that exactly one field is set.
func (e EmbeddingInput) MarshalJSON() ([]byte, error) {
	switch {
	case e.Text != nil && e.Texts != nil:
		return nil, fmt.Errorf("embedding input must set exactly one field")
	case e.Text != nil:
		return json.Marshal(*e.Text)
	case e.Texts != nil:
		return json.Marshal(e.Texts)
	default:
		return nil, fmt.Errorf("embedding input is empty")
	}
}

// Validate checks that the input carries at least one non-empty text.
func (e *EmbeddingInput) Validate() error {
	if e.Text != nil {
		if *e.Text == "" {
			return fmt.Errorf("input string cannot be empty")
		}
		return nil
	}
	if e.Texts != nil {
		if len(e.Texts) == 0 {
			return fmt.Errorf("input array cannot be empty")
		}
		for i, s := range e.Texts {
			if s == "" {
				return fmt.Errorf("input array contains empty string at index %d", i)
			}
		}
		return nil
	}
	return fmt.Errorf("input cannot be nil")
}

// NewEmbeddingInputFromString creates an EmbeddingInput from a single string.
func NewEmbeddingInputFromString(s string) *EmbeddingInput {
	return &EmbeddingInput{Text: &s}
}

// NewEmbeddingInputFromStrings creates an EmbeddingInput from a string slice.
func NewEmbeddingInputFromStrings(ss []string) *EmbeddingInput {
	return &EmbeddingInput{Texts: ss}
}

// EmbeddingRequest is the POST body for /embeddings.
type EmbeddingRequest struct {
	Model string          `json:"model"`
	Input *EmbeddingInput `json:"input"`
	// EncodingFormat is "float" or "base64"; empty means not set.
	EncodingFormat string `json:"encoding_format,omitempty"`
}

// EmbeddingResponse is the /embeddings response body.
type EmbeddingResponse struct {
	Object string            `json:"object"`
	Data   []EmbeddingObject `json:"data"`
	Model  string            `json:"model"`
	Usage  *Usage            `json:"usage,omitempty"`
}

// EmbeddingObject represents a single embedding object.
type EmbeddingObject struct {
	Object    string    `json:"object"`
	Embedding Embedding `json:"embedding"`
	Index     int       `json:"index"`
}

// Embedding is one vector, either as floats or, for encoding_format=base64,
// as the encoded string returned by the API.
type Embedding struct {
	Floats []float64
	Base64 string
}

// UnmarshalJSON accepts a float array or a base64 string.
func (e *Embedding) UnmarshalJSON(data []byte) error {
	e.Floats = nil
	e.Base64 = ""

	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &e.Base64)
	}
	return json.Unmarshal(data, &e.Floats)
}

// MarshalJSON writes the vector back in the form it was received.
func (e Embedding) MarshalJSON() ([]byte, error) {
	if e.Floats == nil && e.Base64 != "" {
		return json.Marshal(e.Base64)
	}
	if e.Floats == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.Floats)
}
