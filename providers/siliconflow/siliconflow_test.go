package siliconflow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/sfnodes/pkg/errors"
	"github.com/blueberrycongee/sfnodes/pkg/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(provider.Credentials{APIKey: "sk-test", BaseURL: server.URL + "/v1/"}, opts...)
}

func TestPost_SetsHeadersAndRoute(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp, err := client.Post(context.Background(), RerankEndpoint, []byte(`{"model":"m"}`), "m")
	require.NoError(t, err)

	assert.Equal(t, "/v1/rerank", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"model":"m"}`, gotBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.IsEventStream())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestPost_MapsRemoteErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantType    string
		wantMessage string
	}{
		{
			name:        "openai envelope",
			status:      http.StatusUnauthorized,
			body:        `{"error":{"message":"Invalid token","type":"auth"}}`,
			wantType:    errors.TypeAuthentication,
			wantMessage: "Invalid token",
		},
		{
			name:        "siliconflow envelope",
			status:      http.StatusBadRequest,
			body:        `{"code":20015,"message":"length of prompt_tokens must be less than max_seq_len","data":null}`,
			wantType:    errors.TypeInvalidRequest,
			wantMessage: "length of prompt_tokens must be less than max_seq_len (code 20015)",
		},
		{
			name:        "plain text",
			status:      http.StatusServiceUnavailable,
			body:        "upstream overloaded",
			wantType:    errors.TypeServiceUnavailable,
			wantMessage: "upstream overloaded",
		},
		{
			name:        "empty body",
			status:      http.StatusTooManyRequests,
			body:        "",
			wantType:    errors.TypeRateLimit,
			wantMessage: "Too Many Requests",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Post(context.Background(), ChatEndpoint, []byte(`{}`), "Qwen/QwQ-32B")
			require.Error(t, err)

			e, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.KindRemoteAPI, e.Kind)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.wantMessage, e.Message)
			assert.Equal(t, "Qwen/QwQ-32B", e.Model)
			assert.Equal(t, tt.status, e.StatusCode)
		})
	}
}

func TestPost_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(provider.Credentials{APIKey: "sk-test", BaseURL: url})
	_, err := client.Post(context.Background(), ChatEndpoint, []byte(`{}`), "m")

	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestPost_TimeoutIsRetryableNetworkError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, WithTimeout(20*time.Millisecond))

	_, err := client.Post(context.Background(), ChatEndpoint, []byte(`{}`), "m")

	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestPost_BodyTooLarge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}, WithMaxResponseBytes(16))

	_, err := client.Post(context.Background(), EmbeddingEndpoint, []byte(`{}`), "m")

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TypeMalformedResponse, e.Type)
}

func TestRateLimit_WaitHonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, WithRateLimit(0.001, 1))

	_, err := client.Post(context.Background(), ChatEndpoint, []byte(`{}`), "m")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = client.Post(ctx, ChatEndpoint, []byte(`{}`), "m")
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
}

func TestListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Empty(t, r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"Qwen/QwQ-32B","object":"model"},{"id":"BAAI/bge-m3","object":"model"}]}`))
	})

	list, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Qwen/QwQ-32B", "BAAI/bge-m3"}, list.IDs())
}

func TestDecodeJSON_Malformed(t *testing.T) {
	err := DecodeJSON(&Response{StatusCode: 200, Body: []byte(`{"choices":`)}, "m", &struct{}{})
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindRemoteAPI, e.Kind)
	assert.Equal(t, errors.TypeMalformedResponse, e.Type)
}

func TestMapError_TruncatesOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("错", 100))

	err := MapError(http.StatusInternalServerError, body, "m")
	e, ok := errors.As(err)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(e.Message), "message %q", e.Message)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.True(t, strings.HasSuffix(e.Message, "..."))
	assert.LessOrEqual(t, len(e.Message), maxErrorBodyPreview+len("..."))
}
