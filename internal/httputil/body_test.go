package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimitedBody_AllowsWithinLimit(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadLimitedBody_RejectsOversize(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("helloworld"), 5)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestEncodeJSON_ReportsSize(t *testing.T) {
	data, size, err := EncodeJSON(map[string]string{"model": "m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != len(data) || string(data) != `{"model":"m"}` {
		t.Fatalf("unexpected encoding %q (size %d)", string(data), size)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int]string{
		512:             "512 B",
		2048:            "2 KB",
		3 * 1024 * 1024: "3 MB",
	}
	for n, want := range tests {
		if got := FormatSize(n); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", n, got, want)
		}
	}
}
