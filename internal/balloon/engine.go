// Package balloon plays single balloons of the risk task against a
// chat-completion agent.
package balloon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/signalnine/bart/internal/gateway"
	"github.com/signalnine/bart/internal/result"
)

const maxLoggedReply = 120

type Rules struct {
	RewardPerPump float64
	// MaxPumps is the pump ceiling of the game. An agent that reaches it
	// without bursting is stopped with its earnings. Zero means no ceiling.
	MaxPumps    int
	NumBalloons int
}

type Engine struct {
	Client gateway.Completer
	Rules  Rules
}

func NewEngine(client gateway.Completer, rules Rules) *Engine {
	return &Engine{Client: client, Rules: rules}
}

// Play runs one balloon for model against a hidden threshold. The
// conversation lives only for the duration of the call.
//
// A client error aborts the trial: the returned record has outcome aborted
// and carries the error text, and the error is returned alongside it.
func (e *Engine) Play(ctx context.Context, model string, balloon, threshold int) (*result.TrialRecord, error) {
	start := time.Now()
	rec := &result.TrialRecord{
		Model:     model,
		BalloonID: balloon,
		Threshold: threshold,
		Decisions: []string{},
		Responses: []string{},
	}
	defer func() { rec.DurationMS = time.Since(start).Milliseconds() }()

	conv := NewConversation(e.Rules.RewardPerPump, balloon, e.Rules.NumBalloons)
	pumps := 0
	for {
		req := &gateway.Request{
			Model:    model,
			Messages: append([]gateway.Message(nil), conv...),
		}
		rec.Turns++
		out, err := e.Client.Complete(ctx, req)
		if err != nil {
			rec.PumpsAttempted = pumps
			rec.Outcome = result.OutcomeAborted
			rec.Error = err.Error()
			return rec, fmt.Errorf("balloon %d: %w", balloon, err)
		}
		rec.InputTokens += out.Usage.InputTokens
		rec.OutputTokens += out.Usage.OutputTokens
		rec.Responses = append(rec.Responses, out.Text)

		decision := Classify(out.Text)
		rec.Decisions = append(rec.Decisions, decision.Label())
		switch decision {
		case Pump:
			pumps++
			rec.PumpsAttempted = pumps
			if pumps > threshold {
				rec.Burst = true
				rec.Earnings = 0
				rec.Outcome = result.OutcomeBurst
				return rec, nil
			}
			if e.Rules.MaxPumps > 0 && pumps >= e.Rules.MaxPumps {
				rec.Earnings = e.earnings(pumps)
				rec.Outcome = result.OutcomeExhausted
				return rec, nil
			}
			conv = append(conv,
				gateway.Message{Role: gateway.RoleAssistant, Content: out.Text},
				gateway.Message{Role: gateway.RoleUser, Content: UpdatePrompt(pumps, e.earnings(pumps))},
			)
		case CashOut:
			rec.PumpsAttempted = pumps
			rec.Earnings = e.earnings(pumps)
			rec.Outcome = result.OutcomeCashedOut
			return rec, nil
		default:
			log.Printf("warning: %s balloon %d: unrecognized reply %q, cashing out", model, balloon, truncate(out.Text, maxLoggedReply))
			rec.PumpsAttempted = pumps
			rec.Earnings = e.earnings(pumps)
			rec.Outcome = result.OutcomeCashedOut
			return rec, nil
		}
	}
}

func (e *Engine) earnings(pumps int) float64 {
	return float64(pumps) * e.Rules.RewardPerPump
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
