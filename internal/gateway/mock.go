package gateway

import (
	"context"
	"hash/fnv"
	"os"
)

const (
	// EnvMode selects the completer implementation.
	EnvMode = "BART_MODE"
	// ModeMock runs against MockCompleter instead of the network.
	ModeMock = "MOCK"
)

// MockMode reports whether BART_MODE=MOCK is set.
func MockMode() bool {
	return os.Getenv(EnvMode) == ModeMock
}

// MockCompleter is an offline agent for dry runs. Each model identity pumps
// up to a stable target derived from its name and the seed, then cashes out.
type MockCompleter struct {
	seed uint64
	max  int
}

var _ Completer = (*MockCompleter)(nil)

// NewMockCompleter builds a mock whose targets fall in [1, maxTarget].
func NewMockCompleter(seed int64, maxTarget int) *MockCompleter {
	if maxTarget < 1 {
		maxTarget = 1
	}
	return &MockCompleter{seed: uint64(seed), max: maxTarget}
}

// Target is the number of pumps model attempts before cashing out.
func (m *MockCompleter) Target(model string) int {
	h := fnv.New64a()
	h.Write([]byte(model))
	return int((h.Sum64()^m.seed)%uint64(m.max)) + 1
}

func (m *MockCompleter) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pumped := 0
	for _, msg := range req.Messages {
		if msg.Role == RoleAssistant {
			pumped++
		}
	}
	text := "Pump"
	if pumped >= m.Target(req.Model) {
		text = "Cash Out"
	}
	var chars int
	for _, msg := range req.Messages {
		chars += len(msg.Content)
	}
	return &Completion{
		Text:  text,
		Usage: Usage{InputTokens: chars / 4, OutputTokens: 1},
	}, nil
}
