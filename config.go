package sfnodes

import (
	"strings"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// RequestConfig is the per-item configuration of one resource.
// Implementations are *ChatConfig, *VisionConfig, *EmbeddingsConfig and *RerankConfig.
type RequestConfig interface {
	Resource() Resource
	// Validate rejects missing or contradictory input with a validation error.
	Validate() error
}

// OutputMode selects the chat output shape.
type OutputMode string

const (
	// OutputSimple returns the message content string only.
	OutputSimple OutputMode = "simple"
	// OutputDetailed returns content plus model, finish reason, usage and raw response.
	OutputDetailed OutputMode = "detailed"
)

// Message is one conversation turn supplied by the user.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams are the optional generation parameters shared by chat and vision.
// A nil pointer means the user did not set the field and it is never sent.
type ChatParams struct {
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	MinP             *float64 `json:"min_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	N                *int     `json:"n,omitempty"`
	EnableThinking   *bool    `json:"enable_thinking,omitempty"`
	ThinkingBudget   *int     `json:"thinking_budget,omitempty"`
	Stream           *bool    `json:"stream,omitempty"`
	// Stop is a comma-separated list of stop sequences.
	Stop string `json:"stop,omitempty"`
	// ResponseFormat is "text" or "json_object"; empty means not set.
	ResponseFormat string `json:"-"`
}

// ChatConfig configures chat/complete.
type ChatConfig struct {
	Model string
	// Messages wins over Prompt when non-empty.
	Messages   []Message
	Prompt     string
	OutputMode OutputMode
	Params     ChatParams
}

// Resource implements RequestConfig.
func (c *ChatConfig) Resource() Resource { return ResourceChat }

// Validate implements RequestConfig.
func (c *ChatConfig) Validate() error {
	if err := validateModel(c.Model); err != nil {
		return err
	}
	if len(c.Messages) == 0 && c.Prompt == "" {
		return errors.NewValidationError("Either messages or prompt must be provided")
	}
	switch c.OutputMode {
	case "", OutputSimple, OutputDetailed:
	default:
		return errors.Validationf("Unsupported output mode %q (expected simple or detailed)", c.OutputMode)
	}
	return validateResponseFormat(c.Params.ResponseFormat)
}

// ImageSourceKind tags an ImageSource variant.
type ImageSourceKind string

const (
	ImageSourceURL    ImageSourceKind = "url"
	ImageSourceBase64 ImageSourceKind = "base64"
	ImageSourceBinary ImageSourceKind = "binary"
)

// ImageSource is one image of a vision request. Which fields apply depends on Kind:
// URL for url, Data and Format for base64, BinaryProperty and Format for binary.
type ImageSource struct {
	Kind           ImageSourceKind `json:"source"`
	URL            string          `json:"url,omitempty"`
	Data           string          `json:"data,omitempty"`
	BinaryProperty string          `json:"binaryProperty,omitempty"`
	// Format is jpeg, png, webp or gif. Empty means jpeg for base64 and
	// the attachment's declared type for binary.
	Format string `json:"format,omitempty"`
	// Detail is low, high or auto. Only low and high are sent.
	Detail string `json:"detail,omitempty"`
}

// VisionConfig configures vision/analyze.
type VisionConfig struct {
	Model  string
	Images []ImageSource
	Prompt string
	Params ChatParams
}

// Resource implements RequestConfig.
func (c *VisionConfig) Resource() Resource { return ResourceVision }

// Validate implements RequestConfig. Image payloads are checked when resolved.
func (c *VisionConfig) Validate() error {
	if err := validateModel(c.Model); err != nil {
		return err
	}
	if len(c.Images) == 0 {
		return errors.NewValidationError("At least one image must be provided")
	}
	if len(c.Images) > MaxImages {
		return errors.Validationf("Too many images: %d (maximum is %d)", len(c.Images), MaxImages)
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return errors.NewValidationError("Prompt is required for image analysis")
	}
	return validateResponseFormat(c.Params.ResponseFormat)
}

// Embedding encodings accepted by the API.
const (
	EncodingFloat  = "float"
	EncodingBase64 = "base64"
)

// EmbeddingsConfig configures embeddings/create.
type EmbeddingsConfig struct {
	Model string
	Input types.EmbeddingInput
	// EncodingFormat is float or base64; empty means not set.
	EncodingFormat string
}

// Resource implements RequestConfig.
func (c *EmbeddingsConfig) Resource() Resource { return ResourceEmbeddings }

// Validate implements RequestConfig.
func (c *EmbeddingsConfig) Validate() error {
	if err := validateModel(c.Model); err != nil {
		return err
	}
	if c.Input.Text == nil && c.Input.Texts == nil {
		return errors.NewValidationError("Input text is required")
	}
	if err := c.Input.Validate(); err != nil {
		return errors.Validationf("Invalid input: %v", err)
	}
	switch c.EncodingFormat {
	case "", EncodingFloat, EncodingBase64:
		return nil
	default:
		return errors.Validationf("Unsupported encoding format %q (expected float or base64)", c.EncodingFormat)
	}
}

// RerankParams are the optional rerank parameters.
type RerankParams struct {
	TopN            *int  `json:"top_n,omitempty"`
	ReturnDocuments *bool `json:"return_documents,omitempty"`
	MaxChunksPerDoc *int  `json:"max_chunks_per_doc,omitempty"`
	OverlapTokens   *int  `json:"overlap_tokens,omitempty"`
}

// RerankConfig configures rerank/create.
type RerankConfig struct {
	Model     string
	Query     string
	Documents []string
	Params    RerankParams
}

// Resource implements RequestConfig.
func (c *RerankConfig) Resource() Resource { return ResourceRerank }

// Validate implements RequestConfig.
func (c *RerankConfig) Validate() error {
	if err := validateModel(c.Model); err != nil {
		return err
	}
	if strings.TrimSpace(c.Query) == "" {
		return errors.NewValidationError("Query is required")
	}
	if len(c.Documents) == 0 {
		return errors.NewValidationError(errNoDocuments)
	}
	if c.Params.TopN != nil && *c.Params.TopN < 1 {
		return errors.Validationf("top_n must be at least 1, got %d", *c.Params.TopN)
	}
	return nil
}

func validateModel(model string) error {
	if err := types.ValidateModelName(model); err != nil {
		return errors.Validationf("Invalid model: %v", err)
	}
	return nil
}

func validateResponseFormat(format string) error {
	switch format {
	case "", "text", "json_object":
		return nil
	default:
		return errors.Validationf("Unsupported response format %q", format)
	}
}

// modelOf returns the model named by cfg, for logs and spans.
func modelOf(cfg RequestConfig) string {
	switch c := cfg.(type) {
	case *ChatConfig:
		return c.Model
	case *VisionConfig:
		return c.Model
	case *EmbeddingsConfig:
		return c.Model
	case *RerankConfig:
		return c.Model
	default:
		return ""
	}
}
