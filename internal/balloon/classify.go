package balloon

import (
	"strings"
	"unicode"

	"github.com/signalnine/bart/internal/result"
)

type Decision int

const (
	Unparseable Decision = iota
	Pump
	CashOut
)

// Recorded decision labels.
const (
	LabelPump        = "Pump"
	LabelCashOut     = "CashOut"
	LabelUnparseable = "Unparseable→CashOut"
)

func (d Decision) String() string {
	switch d {
	case Pump:
		return "Pump"
	case CashOut:
		return "CashOut"
	default:
		return "Unparseable"
	}
}

// Label is the value stored in a trial record's decision list.
func (d Decision) Label() string {
	switch d {
	case Pump:
		return LabelPump
	case CashOut:
		return LabelCashOut
	default:
		return LabelUnparseable
	}
}

var (
	exactPump    = []string{"pump", "pump again", "i pump", "i will pump", "i'll pump"}
	exactCashOut = []string{"cash out", "cashout", "cash-out", "i cash out", "i will cash out", "i'll cash out"}
	cashKeywords = []string{"cash out", "cashout", "cash-out", "cash"}
)

// Classify maps an agent reply to a decision. Exact replies win; otherwise a
// reply naming exactly one of the two actions is taken as that action.
// Replies naming both or neither are Unparseable.
func Classify(reply string) Decision {
	text := normalize(reply)
	if text == "" {
		return Unparseable
	}
	for _, s := range exactPump {
		if text == s {
			return Pump
		}
	}
	for _, s := range exactCashOut {
		if text == s {
			return CashOut
		}
	}

	hasPump := strings.Contains(text, "pump")
	hasCash := false
	for _, k := range cashKeywords {
		if strings.Contains(text, k) {
			hasCash = true
			break
		}
	}
	switch {
	case hasPump && !hasCash:
		return Pump
	case hasCash && !hasPump:
		return CashOut
	default:
		return Unparseable
	}
}

// normalize lowercases, drops markdown and punctuation other than
// apostrophes and hyphens, and collapses whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' {
			return r
		}
		return ' '
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, "-' ")
}

// Mismatch is a stored decision that the current classifier disagrees with.
type Mismatch struct {
	Turn     int    `json:"turn"`
	Response string `json:"response"`
	Recorded string `json:"recorded"`
	Current  string `json:"current"`
}

// Reclassify runs Classify over a record's stored responses and returns the
// turns whose recorded decision differs.
func Reclassify(rec *result.TrialRecord) []Mismatch {
	var out []Mismatch
	for i, resp := range rec.Responses {
		current := Classify(resp).Label()
		recorded := ""
		if i < len(rec.Decisions) {
			recorded = rec.Decisions[i]
		}
		if recorded != current {
			out = append(out, Mismatch{Turn: i + 1, Response: resp, Recorded: recorded, Current: current})
		}
	}
	return out
}
