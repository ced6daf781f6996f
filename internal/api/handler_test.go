package api

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/sfnodes"
)

const chatReply = `{"model":"THUDM/glm-4-plus","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newUpstream starts a fake SiliconFlow API; failOn makes that call return 401.
func newUpstream(t *testing.T, failOn int32) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/models" {
			_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"THUDM/glm-4-plus"}]}`)
			return
		}
		if calls.Add(1) == failOn {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid token"}}`)
			return
		}
		_, _ = io.WriteString(w, chatReply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, upstream string, cfg *HandlerConfig, opts ...sfnodes.Option) *Handler {
	t.Helper()
	base := []sfnodes.Option{
		sfnodes.WithCredentials(sfnodes.Credentials{APIKey: "sk-test", BaseURL: upstream}),
		sfnodes.WithAllowPrivateBaseURL(true),
		sfnodes.WithLogger(discardLogger()),
	}
	client, err := sfnodes.New(append(base, opts...)...)
	require.NoError(t, err)
	swapper := NewClientSwapper(client)
	t.Cleanup(swapper.Close)
	return NewHandler(swapper, discardLogger(), cfg)
}

func post(t *testing.T, h *Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

const twoChatItems = `{"items":[
	{"resource":"chat","parameters":{"prompt":"a"}},
	{"resource":"chat","parameters":{"prompt":"b","outputMode":"detailed"}}
]}`

func TestExecute_Success(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)

	rec := post(t, h, twoChatItems, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(BatchIDHeader))

	var resp struct {
		Records []struct {
			JSON       json.RawMessage `json:"json"`
			PairedItem struct {
				Item int `json:"item"`
			} `json:"pairedItem"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.JSONEq(t, `"hello"`, string(resp.Records[0].JSON))
	assert.Equal(t, 1, resp.Records[1].PairedItem.Item)

	var detailed map[string]any
	require.NoError(t, json.Unmarshal(resp.Records[1].JSON, &detailed))
	assert.Equal(t, "hello", detailed["message"])
	assert.Contains(t, detailed, "_rawResponse")
}

func TestExecute_EchoesBatchID(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)

	rec := post(t, h, `{"items":[]}`, http.Header{BatchIDHeader: {"batch-7"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "batch-7", rec.Header().Get(BatchIDHeader))
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestExecute_AbortReturnsPartialRecords(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 2).URL, nil)

	rec := post(t, h, twoChatItems, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp ErrorResponse
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.NoError(t, json.Unmarshal(raw["error"], &resp.Error))
	assert.Equal(t, "remote_api_error", resp.Error.Kind)
	assert.Equal(t, "authentication_error", resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "Invalid token")

	var records []json.RawMessage
	require.NoError(t, json.Unmarshal(raw["records"], &records))
	assert.Len(t, records, 1)
}

func TestExecute_ContinueOnFail(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 1).URL, nil, sfnodes.WithContinueOnFail(true))

	rec := post(t, h, twoChatItems, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Records []struct {
			JSON json.RawMessage `json:"json"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.Contains(t, string(resp.Records[0].JSON), `"error"`)
	assert.NotContains(t, string(resp.Records[1].JSON), `"error"`)
}

func TestExecute_ValidationAbortIsBadRequest(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)

	rec := post(t, h, `{"items":[{"resource":"rerank","parameters":{"query":"q"}}]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "At least one document must be provided")
	assert.Contains(t, rec.Body.String(), `"kind":"validation_error"`)
}

func TestExecute_InvalidJSON(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)

	rec := post(t, h, `{"items":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestExecute_BodyTooLarge(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, &HandlerConfig{MaxBodySize: 16})

	rec := post(t, h, twoChatItems, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body too large (max 16 B)")
}

func TestExecute_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/execute", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndModels(t *testing.T) {
	h := newTestHandler(t, newUpstream(t, 0).URL, nil)
	mux := h.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"`+sfnodes.Version+`"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"object":"list","data":[{"id":"THUDM/glm-4-plus","object":"model"}]}`, rec.Body.String())
}

func TestExecute_UsesSwappedClient(t *testing.T) {
	first := newUpstream(t, 1)
	h := newTestHandler(t, first.URL, nil)

	second := newUpstream(t, 0)
	next, err := sfnodes.New(
		sfnodes.WithCredentials(sfnodes.Credentials{APIKey: "sk-test", BaseURL: second.URL}),
		sfnodes.WithAllowPrivateBaseURL(true),
		sfnodes.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	h.clients.Swap(next)

	rec := post(t, h, `{"items":[{"resource":"chat","parameters":{"prompt":"a"}}]}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte(`"hello"`)))
}

func TestExecute_UpstreamTimeoutIsGatewayTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)
	h := newTestHandler(t, slow.URL, nil, sfnodes.WithTimeout(50*time.Millisecond))

	rec := post(t, h, `{"items":[{"resource":"chat","parameters":{"prompt":"a"}}]}`, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"network_error"`)
}

func TestExecute_AbortLogRedactsKeys(t *testing.T) {
	const leaked = "sk-abcdefghijklmnopqrstuvwxyz0123"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid token `+leaked+`"}}`)
	}))
	t.Cleanup(upstream.Close)

	h := newTestHandler(t, upstream.URL, nil)
	var buf bytes.Buffer
	h.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	rec := post(t, h, `{"items":[{"resource":"chat","parameters":{"prompt":"a"}}]}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	logged := buf.String()
	assert.Contains(t, logged, "batch aborted")
	assert.Contains(t, logged, "[REDACTED_API_KEY]")
	assert.NotContains(t, logged, leaked)
}
