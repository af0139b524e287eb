package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ClientOpts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Referer string
	Title   string
	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	referer    string
	title      string
	httpClient *http.Client
	now        func() time.Time
}

var _ Completer = (*Client)(nil)

func NewClient(opts ClientOpts) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		referer:    opts.Referer,
		title:      opts.Title,
		httpClient: hc,
		now:        time.Now,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error"`
}

// apiError is the error object. Some gateways send it with a 200 status and
// a numeric code, others as a string type.
type apiError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

func (e *apiError) status() int {
	if len(e.Code) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(e.Code, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}

func (c *Client) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &FatalError{Message: "empty conversation"}
	}
	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: req.Messages})
	if err != nil {
		return nil, &FatalError{Message: "marshaling request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &FatalError{Message: "creating request", Err: err}
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientError{Message: "sending request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, classifyStatus(resp.StatusCode, msg, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()))
	}
	if decodeErr != nil {
		return nil, &FatalError{StatusCode: resp.StatusCode, Message: "decoding response", Err: decodeErr}
	}
	if parsed.Error != nil {
		code := parsed.Error.status()
		if code == 0 {
			return nil, &FatalError{StatusCode: resp.StatusCode, Message: parsed.Error.Message}
		}
		return nil, classifyStatus(code, parsed.Error.Message, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil {
		return nil, &FatalError{StatusCode: resp.StatusCode, Message: "no choices in response"}
	}

	out := &Completion{}
	if content := parsed.Choices[0].Message.Content; content != nil {
		out.Text = *content
	}
	if parsed.Usage != nil {
		out.Usage = Usage{InputTokens: parsed.Usage.PromptTokens, OutputTokens: parsed.Usage.CompletionTokens}
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
}

// errorString renders err for trace output, empty for nil.
func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// isContextErr reports whether err is a cancellation or deadline from ctx.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
