package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/bart/internal/gateway"
)

func conversation() *gateway.Request {
	return &gateway.Request{
		Model: "openai/gpt-4o",
		Messages: []gateway.Message{
			{Role: gateway.RoleSystem, Content: "rules"},
			{Role: gateway.RoleUser, Content: "Balloon 1"},
		},
	}
}

func TestClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "BART", r.Header.Get("X-Title"))

		var body struct {
			Model    string            `json:"model"`
			Messages []gateway.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o", body.Model)
		assert.Len(t, body.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"Pump"}}],"usage":{"prompt_tokens":12,"completion_tokens":1}}`)
	}))
	defer server.Close()

	client := gateway.NewClient(gateway.ClientOpts{
		BaseURL: server.URL + "/api/v1/",
		APIKey:  "sk-test",
		Timeout: time.Second,
		Referer: "https://example.test",
		Title:   "BART",
	})
	out, err := client.Complete(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "Pump", out.Text)
	assert.Equal(t, gateway.Usage{InputTokens: 12, OutputTokens: 1}, out.Usage)
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		retryAfter    string
		wantTransient bool
		wantHint      time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "2", true, 2 * time.Second},
		{"server error", http.StatusBadGateway, `upstream unavailable`, "", true, 0},
		{"service unavailable", http.StatusServiceUnavailable, `{}`, "", true, 0},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request_error"}}`, "", false, 0},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"no key"}}`, "", false, 0},
		{"malformed body", http.StatusOK, `not json`, "", false, 0},
		{"no choices", http.StatusOK, `{"choices":[]}`, "", false, 0},
		{"error object 429 in 200", http.StatusOK, `{"error":{"message":"rate","code":429}}`, "", true, 0},
		{"error object 400 in 200", http.StatusOK, `{"error":{"message":"bad","code":"400"}}`, "", false, 0},
		{"error object without code", http.StatusOK, `{"error":{"message":"moderation"}}`, "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := gateway.NewClient(gateway.ClientOpts{BaseURL: server.URL, Timeout: time.Second})
			_, err := client.Complete(context.Background(), conversation())
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, gateway.IsTransient(err), "transient classification for %v", err)
			assert.Equal(t, !tt.wantTransient, gateway.IsFatal(err), "fatal classification for %v", err)

			if tt.wantHint > 0 {
				var te *gateway.TransientError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.wantHint, te.RetryAfter)
			}
		})
	}
}

func TestClientNullContentIsEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":null}}]}`)
	}))
	defer server.Close()

	client := gateway.NewClient(gateway.ClientOpts{BaseURL: server.URL})
	out, err := client.Complete(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "", out.Text)
}

func TestClientNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := gateway.NewClient(gateway.ClientOpts{BaseURL: url, Timeout: time.Second})
	_, err := client.Complete(context.Background(), conversation())
	require.Error(t, err)
	assert.True(t, gateway.IsTransient(err))
}

func TestClientRejectsEmptyConversation(t *testing.T) {
	client := gateway.NewClient(gateway.ClientOpts{BaseURL: "http://unused"})
	_, err := client.Complete(context.Background(), &gateway.Request{Model: "m"})
	assert.True(t, gateway.IsFatal(err))
}

func TestClientCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	client := gateway.NewClient(gateway.ClientOpts{BaseURL: server.URL, Timeout: 5 * time.Second})
	_, err := client.Complete(ctx, conversation())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, gateway.IsTransient(err))
}

func TestParseEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := `# secrets
export OPENROUTER_API_KEY="sk-or-123"
OTHER='quoted value'

`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	vars, err := gateway.ParseEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-123", vars["OPENROUTER_API_KEY"])
	assert.Equal(t, "quoted value", vars["OTHER"])
	assert.Len(t, vars, 2)
	assert.Empty(t, os.Getenv("OTHER"), "parsing must not export into the environment")

	_, err = gateway.ParseEnvFile(filepath.Join(dir, "missing.env"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTraceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payloads.jsonl")
	tracer, err := gateway.OpenTracer(path)
	require.NoError(t, err)

	calls := 0
	inner := gateway.CompleterFunc(func(ctx context.Context, req *gateway.Request) (*gateway.Completion, error) {
		calls++
		if calls == 2 {
			return nil, &gateway.FatalError{StatusCode: 401, Message: "no key"}
		}
		return &gateway.Completion{Text: "Cash Out", Usage: gateway.Usage{InputTokens: 10, OutputTokens: 2}}, nil
	})
	c := gateway.WithTrace(inner, tracer)

	out, err := c.Complete(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "Cash Out", out.Text)
	_, err = c.Complete(context.Background(), conversation())
	require.Error(t, err)
	require.NoError(t, tracer.Close())

	// Non-JSON noise in the file is skipped.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	fmt.Fprintln(f, "interrupted write")
	f.Close()

	entries, err := gateway.ReadTrace(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(entries[0].ID, "req_"))
	assert.Len(t, entries[0].Request, 2)
	assert.Equal(t, "Cash Out", entries[0].Response.Text)
	assert.Contains(t, entries[1].Error, "401")
	assert.Nil(t, entries[1].Response)
}

func TestWithTraceNilTracer(t *testing.T) {
	inner := gateway.CompleterFunc(func(ctx context.Context, req *gateway.Request) (*gateway.Completion, error) {
		return &gateway.Completion{Text: "Pump"}, nil
	})
	out, err := gateway.WithTrace(inner, nil).Complete(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "Pump", out.Text)
}

func TestTotalUsage(t *testing.T) {
	in, out := gateway.TotalUsage([]gateway.Usage{{InputTokens: 4200, OutputTokens: 1800}, {InputTokens: 1000, OutputTokens: 500}})
	assert.Equal(t, 5200, in)
	assert.Equal(t, 2300, out)
}

func TestMockCompleter(t *testing.T) {
	m := gateway.NewMockCompleter(7, 6)
	target := m.Target("openai/gpt-4o")
	require.GreaterOrEqual(t, target, 1)
	require.LessOrEqual(t, target, 6)
	assert.Equal(t, target, gateway.NewMockCompleter(7, 6).Target("openai/gpt-4o"), "target must be stable")

	req := conversation()
	for i := 0; i < target; i++ {
		out, err := m.Complete(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "Pump", out.Text, "pump %d", i+1)
		req.Messages = append(req.Messages,
			gateway.Message{Role: gateway.RoleAssistant, Content: out.Text},
			gateway.Message{Role: gateway.RoleUser, Content: "did not burst"})
	}
	out, err := m.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Cash Out", out.Text)
}

func TestMockMode(t *testing.T) {
	t.Setenv(gateway.EnvMode, gateway.ModeMock)
	assert.True(t, gateway.MockMode())
	t.Setenv(gateway.EnvMode, "")
	assert.False(t, gateway.MockMode())
}
