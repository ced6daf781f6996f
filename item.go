package sfnodes

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// BinaryData is one named attachment of a host item.
type BinaryData struct {
	// Data is the base64-encoded content.
	Data     string `json:"data"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Item is one unit of host work. It produces exactly one OutputRecord.
type Item struct {
	Config RequestConfig
	Binary map[string]BinaryData

	// err holds a decoding failure, reported when the item is processed.
	err error
}

// UnmarshalJSON decodes a host item:
//
//	{"resource": "chat", "operation": "complete", "parameters": {...}, "binary": {...}}
//
// Parameters use the node field names. An item that cannot be decoded is
// kept and fails with a validation error when processed, so one bad item
// never breaks the decoding of its batch.
func (it *Item) UnmarshalJSON(data []byte) error {
	*it = Item{}

	var env struct {
		Resource   Resource              `json:"resource"`
		Operation  string                `json:"operation"`
		Parameters json.RawMessage       `json:"parameters"`
		Binary     map[string]BinaryData `json:"binary"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		it.err = errors.Validationf("Invalid item: %v", err)
		return nil
	}

	it.Binary = env.Binary
	it.Config, it.err = DecodeConfig(env.Resource, env.Operation, env.Parameters)
	return nil
}

// Err returns the decoding error of the item, if any.
func (it *Item) Err() error {
	return it.err
}

type chatParameters struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Messages struct {
		MessageValues []Message `json:"messageValues"`
	} `json:"messages"`
	OutputMode       OutputMode       `json:"outputMode"`
	AdditionalFields additionalFields `json:"additionalFields"`
}

type visionParameters struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Images struct {
		ImageValues []ImageSource `json:"imageValues"`
	} `json:"images"`
	AdditionalFields additionalFields `json:"additionalFields"`
}

type additionalFields struct {
	ChatParams
	ResponseFormat struct {
		FormatValues struct {
			Type string `json:"type"`
		} `json:"formatValues"`
	} `json:"response_format"`
}

func (f additionalFields) params() ChatParams {
	p := f.ChatParams
	p.ResponseFormat = f.ResponseFormat.FormatValues.Type
	return p
}

type embeddingsParameters struct {
	Model            string               `json:"embeddingModel"`
	Input            types.EmbeddingInput `json:"input"`
	AdditionalFields struct {
		EncodingFormat string `json:"encoding_format"`
	} `json:"embeddingAdditionalFields"`
}

type rerankParameters struct {
	Model            string          `json:"rerankModel"`
	Query            string          `json:"query"`
	Documents        json.RawMessage `json:"documents"`
	AdditionalFields RerankParams    `json:"rerankAdditionalFields"`
}

// DecodeConfig decodes the parameter bag of one resource/operation pair.
// An empty operation selects the resource's only operation.
func DecodeConfig(resource Resource, operation string, params json.RawMessage) (RequestConfig, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}

	switch {
	case resource == ResourceChat && (operation == "" || operation == "complete"):
		var p chatParameters
		if err := decodeParameters(params, &p); err != nil {
			return nil, err
		}
		cfg := &ChatConfig{
			Model:      orDefault(p.Model, DefaultChatModel),
			Messages:   p.Messages.MessageValues,
			Prompt:     p.Prompt,
			OutputMode: p.OutputMode,
			Params:     p.AdditionalFields.params(),
		}
		if cfg.OutputMode == "" {
			cfg.OutputMode = OutputSimple
		}
		return cfg, nil

	case resource == ResourceVision && (operation == "" || operation == "analyze"):
		var p visionParameters
		if err := decodeParameters(params, &p); err != nil {
			return nil, err
		}
		return &VisionConfig{
			Model:  p.Model,
			Images: p.Images.ImageValues,
			Prompt: p.Prompt,
			Params: p.AdditionalFields.params(),
		}, nil

	case resource == ResourceEmbeddings && (operation == "" || operation == "create"):
		var p embeddingsParameters
		if err := decodeParameters(params, &p); err != nil {
			return nil, err
		}
		return &EmbeddingsConfig{
			Model:          orDefault(p.Model, DefaultEmbeddingsModel),
			Input:          p.Input,
			EncodingFormat: p.AdditionalFields.EncodingFormat,
		}, nil

	case resource == ResourceRerank && (operation == "" || operation == "create"):
		var p rerankParameters
		if err := decodeParameters(params, &p); err != nil {
			return nil, err
		}
		docs, err := decodeDocuments(p.Documents)
		if err != nil {
			return nil, err
		}
		return &RerankConfig{
			Model:     orDefault(p.Model, DefaultRerankModel),
			Query:     p.Query,
			Documents: docs,
			Params:    p.AdditionalFields,
		}, nil

	default:
		return nil, errors.Validationf("Unsupported operation %q for resource %q", operation, resource)
	}
}

func decodeParameters(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Validationf("Invalid parameters: %v", err)
	}
	return nil
}

// decodeDocuments accepts the single text field of the node or a JSON array.
func decodeDocuments(data json.RawMessage) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var docs []string
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, errors.Validationf("Invalid documents: %v", err)
		}
		return docs, nil
	}

	var s string
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, errors.Validationf("Invalid documents: %v", err)
		}
	}
	return ParseDocuments(s)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// OutputRecord is the result of one item.
type OutputRecord struct {
	// Item is the index of the input item this record belongs to.
	Item int
	// JSON is the curated projection: a string for simple chat output,
	// an output struct otherwise, or {"error": "..."} for a failed item.
	JSON any
	// Raw is the unmodified API response. It is empty for error records.
	Raw json.RawMessage

	err error
}

// ErrorOutput is the JSON of an error record.
type ErrorOutput struct {
	Error string `json:"error"`
}

// NewErrorRecord builds the record that replaces a failed item under continue-on-fail.
func NewErrorRecord(index int, err error) OutputRecord {
	msg := "Unknown error occurred"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return OutputRecord{
		Item: index,
		JSON: ErrorOutput{Error: msg},
		err:  err,
	}
}

// Err returns the error of an error record, or nil.
func (r OutputRecord) Err() error {
	return r.err
}

type pairedItem struct {
	Item int `json:"item"`
}

// MarshalJSON writes the host item shape {"json": ..., "pairedItem": {"item": i}}.
func (r OutputRecord) MarshalJSON() ([]byte, error) {
	out := struct {
		JSON       any        `json:"json"`
		PairedItem pairedItem `json:"pairedItem"`
	}{
		JSON:       r.JSON,
		PairedItem: pairedItem{Item: r.Item},
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", r.Item, err)
	}
	return data, nil
}
