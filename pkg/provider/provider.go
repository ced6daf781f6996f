// Package provider defines the credential record shared by every SiliconFlow
// operation. Credentials are read once per batch and never mutated.
package provider

import (
	"fmt"
	"strings"
)

const (
	// Name is the provider identifier used in logs, metrics and spans.
	Name = "siliconflow"

	// DefaultBaseURL is the default SiliconFlow API endpoint.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"
)

// Credentials holds what the host's credential store supplies.
type Credentials struct {
	APIKey  string `json:"apiKey" yaml:"api_key"`
	BaseURL string `json:"baseUrl" yaml:"base_url"`
}

// Normalized returns a copy with surrounding whitespace removed, the default
// base URL filled in and any trailing slash dropped.
func (c Credentials) Normalized() Credentials {
	out := Credentials{
		APIKey:  strings.TrimSpace(c.APIKey),
		BaseURL: strings.TrimSpace(c.BaseURL),
	}
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	out.BaseURL = strings.TrimRight(out.BaseURL, "/")
	return out
}

// Validate checks that the API key is present and the base URL is acceptable.
func (c Credentials) Validate(allowPrivate bool) error {
	n := c.Normalized()
	if n.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	return ValidateBaseURL(n.BaseURL, allowPrivate)
}

// String never prints the API key.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{BaseURL: %q, APIKey: %s}", c.BaseURL, maskKey(c.APIKey))
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
