package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatReply = `{"model":"THUDM/glm-4-plus","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`

func newUpstream(t *testing.T, failOn int32) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == failOn {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":20015,"message":"bad params"}`)
			return
		}
		_, _ = io.WriteString(w, chatReply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string, continueOnFail bool) string {
	t.Helper()
	content := "credentials:\n" +
		"  api_key: sk-test\n" +
		"  base_url: " + baseURL + "\n" +
		"execution:\n" +
		"  allow_private_base_url: true\n"
	if continueOnFail {
		content += "  continue_on_fail: true\n"
	}
	content += "logging:\n  level: error\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const threeItems = `[
	{"resource": "chat", "parameters": {"prompt": "a"}},
	{"resource": "chat", "parameters": {"prompt": "b"}},
	{"resource": "chat", "parameters": {"prompt": "c"}}
]`

type record struct {
	JSON       json.RawMessage `json:"json"`
	PairedItem struct {
		Item int `json:"item"`
	} `json:"pairedItem"`
}

func TestRun_BatchFromStdin(t *testing.T) {
	path := writeConfig(t, newUpstream(t, 0).URL, false)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path}, strings.NewReader(threeItems), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var records []record
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &records))
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i, rec.PairedItem.Item)
		assert.JSONEq(t, `"hello"`, string(rec.JSON))
	}
}

func TestRun_BatchFromFileContinueOnFail(t *testing.T) {
	path := writeConfig(t, newUpstream(t, 2).URL, true)
	input := filepath.Join(t.TempDir(), "items.json")
	require.NoError(t, os.WriteFile(input, []byte(threeItems), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-input", input}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var records []record
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &records))
	require.Len(t, records, 3)
	assert.JSONEq(t, `{"error":"[invalid_request_error] bad params (code 20015) (model=THUDM/glm-4-plus, code=400)"}`, string(records[1].JSON))
}

func TestRun_AbortPrintsPartialRecords(t *testing.T) {
	path := writeConfig(t, newUpstream(t, 2).URL, false)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path}, strings.NewReader(threeItems), &stdout, &stderr)
	assert.Equal(t, 1, code)

	var records []record
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &records))
	assert.Len(t, records, 1)
	assert.Contains(t, stderr.String(), "batch failed")
}

func TestRun_InvalidInput(t *testing.T) {
	path := writeConfig(t, newUpstream(t, 0).URL, false)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path}, strings.NewReader(`{"not":"an array"}`), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "decode items")
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, strings.NewReader(`[]`), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), APIKeyEnv)
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer

	opts, err := parseFlags([]string{"-config", "c.yaml", "-input", "items.json"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "c.yaml", opts.configPath)
	assert.Equal(t, "items.json", opts.input)
	assert.False(t, opts.serve)

	opts, err = parseFlags(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "-", opts.input)

	_, err = parseFlags([]string{"-serve"}, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-bogus"}, &stderr)
	assert.Error(t, err)
}
