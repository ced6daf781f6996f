// Package httputil provides helpers for working with HTTP payloads safely.
package httputil

import (
	"errors"
	"io"
	"strconv"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxResponseBodyBytes caps API response bodies to 10MB.
	DefaultMaxResponseBodyBytes int64 = 10 * 1024 * 1024
)

// ErrBodyTooLarge is returned when a body exceeds its byte limit.
var ErrBodyTooLarge = errors.New("body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns ErrBodyTooLarge when exceeded.
// A non-positive maxBytes reads everything.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:int(maxBytes)], ErrBodyTooLarge
	}
	return body, nil
}

// EncodeJSON marshals v for use as a request body. The returned length is
// what vision diagnostics report as the serialized payload size.
func EncodeJSON(v any) ([]byte, int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, 0, err
	}
	return data, len(data), nil
}

// FormatSize renders a byte count for log lines and error messages.
func FormatSize(n int) string {
	const unit = 1024
	switch {
	case n < unit:
		return strconv.Itoa(n) + " B"
	case n < unit*unit:
		return strconv.Itoa(n/unit) + " KB"
	default:
		return strconv.Itoa(n/(unit*unit)) + " MB"
	}
}
