// Package gateway is the remote completion client: it sends a conversation to
// an OpenAI-compatible chat-completion endpoint and returns the reply text.
// Retry, rate limiting and payload tracing are decorators around Completer.
package gateway

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Completion struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Completer generates the next assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req *Request) (*Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, req *Request) (*Completion, error) {
	return f(ctx, req)
}

// TotalUsage sums token counts.
func TotalUsage(usages []Usage) (inputTokens, outputTokens int) {
	for _, u := range usages {
		inputTokens += u.InputTokens
		outputTokens += u.OutputTokens
	}
	return
}
