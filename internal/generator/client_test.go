package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"freqy/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg ClientConfig) (*OpenAICompatClient, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/v1/"
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	return NewOpenAICompatClient(cfg, quietLogger()), &hits
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func TestClientSendsChatCompletion(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(w, "  Song — Artist  ")
	}, ClientConfig{APIKey: "sk-test", MaxTokens: 256})

	text, err := client.GenerateText(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Song — Artist", text)

	assert.Equal(t, "test-model", got["model"])
	assert.Equal(t, float64(0), got["temperature"])
	assert.Equal(t, float64(256), got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
		wantMsg string
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			},
			wantErr: ErrRateLimited,
			wantMsg: "slow down",
		},
		{
			name: "unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: ErrServiceUnavailable,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
			},
			wantErr: ErrServiceUnavailable,
			wantMsg: "model not found",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantErr: ErrUnparsableResponse,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			wantErr: ErrUnparsableResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler, ClientConfig{})

			_, err := client.GenerateText(context.Background(), "system", "user")
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClientTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, ClientConfig{Timeout: 50 * time.Millisecond})

	_, err := client.GenerateText(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestClientUnreachable(t *testing.T) {
	client := NewOpenAICompatClient(ClientConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "m"}, quietLogger())

	_, err := client.GenerateText(context.Background(), "system", "user")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestClientLocalRateLimit(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "ok")
	}, ClientConfig{RequestsPerMinute: 1, Burst: 1})

	_, err := client.GenerateText(context.Background(), "system", "user")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.GenerateText(ctx, "system", "user")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "second call must not reach the service")
}

// isNamingRequest reports whether a chat request carries the naming system prompt.
func isNamingRequest(t *testing.T, r *http.Request) bool {
	var req chatRequest
	if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || len(req.Messages) == 0 {
		return false
	}
	return req.Messages[0].Content == namingSystemPrompt
}

func TestGenerateWithNamingDoesNotWaitOnLimiter(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if isNamingRequest(t, r) {
			writeCompletion(w, "Sunny Side")
			return
		}
		writeCompletion(w, numberedReply(10))
	}, ClientConfig{RequestsPerMinute: 20})

	gen := New(client, newTestStore(t), 10, true, quietLogger())

	start := time.Now()
	playlist, err := gen.Generate(context.Background(), models.MoodHappy, "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "Sunny Side", playlist.Name)
	assert.Len(t, playlist.Songs, 10)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Less(t, elapsed, time.Second, "songs and naming should both fit in the limiter burst")
}

func TestGenerateDeadlineCoversNaming(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if isNamingRequest(t, r) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		writeCompletion(w, numberedReply(10))
	}, ClientConfig{Timeout: 5 * time.Second})

	store := newTestStore(t)
	gen := New(client, store, 10, true, quietLogger())
	gen.SetDeadline(300 * time.Millisecond)

	start := time.Now()
	playlist, err := gen.Generate(context.Background(), models.MoodCalm, "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "Calm Mix", playlist.Name)
	assert.Less(t, elapsed, 2*time.Second, "a slow naming call must be cut off by the generation deadline")

	stored, err := store.GetAllPlaylists(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
