package sfnodes

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/types"
)

// MaxImages is the number of images one vision request may carry.
const MaxImages = 9

const defaultImageMimeType = "image/jpeg"

var formatMimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// MimeTypeForFormat maps an image format to its MIME type.
func MimeTypeForFormat(format string) (string, error) {
	mime, ok := formatMimeTypes[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return "", errors.Validationf("Unsupported image format %q (expected jpeg, png, webp or gif)", format)
	}
	return mime, nil
}

// ResolveImage turns one image source into an image_url content block.
// binary holds the attachments of the current item.
func ResolveImage(src ImageSource, binary map[string]BinaryData) (types.ContentPart, error) {
	detail, err := imageDetail(src.Detail)
	if err != nil {
		return types.ContentPart{}, err
	}

	var url string
	switch src.Kind {
	case ImageSourceURL:
		url = strings.TrimSpace(src.URL)
		if url == "" {
			return types.ContentPart{}, errors.NewValidationError("Image URL is required")
		}

	case ImageSourceBase64:
		data := strings.TrimSpace(src.Data)
		if data == "" {
			return types.ContentPart{}, errors.NewValidationError("Base64 image data is required")
		}
		if strings.HasPrefix(data, "data:") {
			url = data
			break
		}
		mime := defaultImageMimeType
		if src.Format != "" {
			if mime, err = MimeTypeForFormat(src.Format); err != nil {
				return types.ContentPart{}, err
			}
		}
		url = dataURI(mime, data)

	case ImageSourceBinary:
		if url, err = resolveBinaryImage(src, binary); err != nil {
			return types.ContentPart{}, err
		}

	default:
		return types.ContentPart{}, errors.Validationf("Unsupported image source %q (expected url, base64 or binary)", src.Kind)
	}

	return types.ContentPart{
		Type:     types.ContentTypeImageURL,
		ImageURL: &types.ImageURL{URL: url, Detail: detail},
	}, nil
}

func resolveBinaryImage(src ImageSource, binary map[string]BinaryData) (string, error) {
	name := strings.TrimSpace(src.BinaryProperty)
	if name == "" {
		name = "data"
	}

	att, ok := binary[name]
	if !ok {
		return "", errors.Validationf("Binary property %q not found on item. Available properties: %s", name, availableProperties(binary))
	}

	payload := strings.TrimSpace(att.Data)
	if payload == "" {
		return "", errors.Validationf("Binary property %q has no data", name)
	}
	if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
		return "", errors.Validationf("Binary property %q is not valid base64 data", name)
	}

	mime := att.MimeType
	if src.Format != "" {
		var err error
		if mime, err = MimeTypeForFormat(src.Format); err != nil {
			return "", err
		}
	}
	if mime == "" {
		mime = defaultImageMimeType
	}
	return dataURI(mime, payload), nil
}

func availableProperties(binary map[string]BinaryData) string {
	if len(binary) == 0 {
		return "none"
	}
	names := make([]string, 0, len(binary))
	for k := range binary {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// imageDetail returns the detail value to send. auto is the API default and
// is never sent.
func imageDetail(detail string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(detail)); d {
	case "", "auto":
		return "", nil
	case "low", "high":
		return d, nil
	default:
		return "", errors.Validationf("Unsupported image detail %q (expected auto, low or high)", detail)
	}
}

func dataURI(mime, payload string) string {
	return "data:" + mime + ";base64," + payload
}

// BuildVisionRequest builds the /chat/completions body for cfg: one user
// message with an image_url block per source, in order, then the prompt.
func BuildVisionRequest(cfg *VisionConfig, binary map[string]BinaryData) (*types.ChatRequest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parts := make([]types.ContentPart, 0, len(cfg.Images)+1)
	for i, src := range cfg.Images {
		part, err := ResolveImage(src, binary)
		if err != nil {
			if e, ok := errors.As(err); ok {
				return nil, errors.Validationf("Image %d: %s", i+1, e.Message)
			}
			return nil, err
		}
		parts = append(parts, part)
	}
	parts = append(parts, types.ContentPart{Type: types.ContentTypeText, Text: cfg.Prompt})

	req := &types.ChatRequest{
		Model:    cfg.Model,
		Messages: []types.ChatMessage{types.NewPartsMessage("user", parts)},
	}
	applyChatParams(req, cfg.Params)
	return req, nil
}

// VisionError enriches a failed vision call with the request shape, since
// failures there are usually caused by oversized image payloads.
type VisionError struct {
	Model        string
	Images       int
	PayloadBytes int
	Err          error
}

func (e *VisionError) Error() string {
	return fmt.Sprintf("vision request failed (model=%s, images=%d, payload=%d bytes): %v",
		e.Model, e.Images, e.PayloadBytes, e.Err)
}

// Unwrap exposes the underlying error so errors.As still finds its kind.
func (e *VisionError) Unwrap() error {
	return e.Err
}

// VisionOutput is the vision/analyze record.
type VisionOutput struct {
	Analysis     string          `json:"analysis"`
	Model        string          `json:"model"`
	FinishReason string          `json:"finishReason"`
	Usage        *types.Usage    `json:"usage,omitempty"`
	ImageCount   int             `json:"imageCount"`
	RawResponse  json.RawMessage `json:"_rawResponse"`
}

// ShapeVisionResponse projects a vision response.
func ShapeVisionResponse(resp *types.ChatResponse, raw json.RawMessage, imageCount int) (*VisionOutput, error) {
	choice, err := firstChoice(resp)
	if err != nil {
		return nil, err
	}
	return &VisionOutput{
		Analysis:     choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
		ImageCount:   imageCount,
		RawResponse:  raw,
	}, nil
}
