package types

import (
	"fmt"
	"strings"
)

const MaxModelNameLength = 256

// ValidateModelName checks that a model name is present and within bounds.
func ValidateModelName(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model is required")
	}
	if len(model) > MaxModelNameLength {
		return fmt.Errorf("model is too long (max %d characters)", MaxModelNameLength)
	}
	return nil
}

// SplitOrgModel splits SiliconFlow model IDs such as "Pro/deepseek-ai/DeepSeek-R1"
// into the tier prefix ("Pro" or ""), the organization and the model name.
func SplitOrgModel(model string) (tier, org, name string) {
	model = strings.TrimSpace(model)
	parts := strings.Split(model, "/")
	switch len(parts) {
	case 1:
		return "", "", parts[0]
	case 2:
		return "", parts[0], parts[1]
	default:
		return parts[0], parts[1], strings.Join(parts[2:], "/")
	}
}

// Model is one entry of the /models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelList is the /models response body.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// IDs returns the model identifiers in listing order.
func (l *ModelList) IDs() []string {
	ids := make([]string, 0, len(l.Data))
	for _, m := range l.Data {
		ids = append(ids, m.ID)
	}
	return ids
}
