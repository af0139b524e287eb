package balloon_test

import (
	"testing"

	"github.com/signalnine/bart/internal/balloon"
	"github.com/signalnine/bart/internal/result"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		reply string
		want  balloon.Decision
	}{
		{"Pump", balloon.Pump},
		{"pump", balloon.Pump},
		{"  PUMP.  ", balloon.Pump},
		{"**Pump**", balloon.Pump},
		{"`Pump`", balloon.Pump},
		{"'Pump'", balloon.Pump},
		{"I'll pump.", balloon.Pump},
		{"Pump again!", balloon.Pump},
		{"I think I will pump the balloon one more time.", balloon.Pump},
		{"Cash Out", balloon.CashOut},
		{"cash out", balloon.CashOut},
		{"Cashout", balloon.CashOut},
		{"cash-out", balloon.CashOut},
		{"**Cash Out**.", balloon.CashOut},
		{"I'll cash out now to keep my earnings.", balloon.CashOut},
		{"Cash", balloon.CashOut},
		{"", balloon.Unparseable},
		{"   ", balloon.Unparseable},
		{"I'm not sure.", balloon.Unparseable},
		{"42", balloon.Unparseable},
		{"I could pump or cash out.", balloon.Unparseable},
		{"Pump? No, Cash Out.", balloon.Unparseable},
	}
	for _, tt := range tests {
		if got := balloon.Classify(tt.reply); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestDecisionLabels(t *testing.T) {
	if balloon.Pump.Label() != "Pump" || balloon.CashOut.Label() != "CashOut" {
		t.Errorf("labels: %q %q", balloon.Pump.Label(), balloon.CashOut.Label())
	}
	if balloon.Unparseable.Label() != "Unparseable→CashOut" {
		t.Errorf("unparseable label: %q", balloon.Unparseable.Label())
	}
}

func TestReclassify(t *testing.T) {
	rec := &result.TrialRecord{
		Responses: []string{"Pump", "pump!", "maybe"},
		Decisions: []string{"Pump", "CashOut", "Unparseable→CashOut"},
	}
	got := balloon.Reclassify(rec)
	if len(got) != 1 {
		t.Fatalf("got %d mismatches, want 1: %+v", len(got), got)
	}
	m := got[0]
	if m.Turn != 2 || m.Recorded != "CashOut" || m.Current != "Pump" {
		t.Errorf("mismatch: %+v", m)
	}

	clean := &result.TrialRecord{Responses: []string{"Cash Out"}, Decisions: []string{"CashOut"}}
	if got := balloon.Reclassify(clean); len(got) != 0 {
		t.Errorf("clean record: %+v", got)
	}
}
