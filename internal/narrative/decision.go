package narrative

import (
	"regexp"
	"strings"
)

// DecisionOption is a machine-readable decision code.
type DecisionOption string

const (
	DecisionLifestyle  DecisionOption = "lifestyle_intervention"
	DecisionReferral   DecisionOption = "specialist_referral"
	DecisionMonitoring DecisionOption = "monitoring"
	DecisionNoAction   DecisionOption = "no_action"
	DecisionUnknown    DecisionOption = "unknown"
)

// MenuEntry is one numbered choice offered to the planning agent.
type MenuEntry struct {
	Number   int
	Code     DecisionOption
	Label    string
	keywords []string
}

// Menu is the fixed decision menu, in prompt order.
var Menu = []MenuEntry{
	{1, DecisionLifestyle, "Lifestyle intervention", []string{"lifestyle"}},
	{2, DecisionReferral, "Specialist referral", []string{"specialist", "referral", "refer "}},
	{3, DecisionMonitoring, "Monitoring", []string{"monitoring", "monitor"}},
	{4, DecisionNoAction, "No action", []string{"no action", "no further action"}},
}

var leadingNumber = regexp.MustCompile(`(?i)^[\s*#>_\-]*(?:option|choice|decision)?\s*[:#]?\s*\(?([1-4])\s*[.):\-]?(?:\s|$)`)

// ParseDecision maps free text from the planning agent onto the menu. A leading
// menu number wins; otherwise the earliest keyword in the text decides.
func ParseDecision(text string) DecisionOption {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := leadingNumber.FindStringSubmatch(line); m != nil {
			return Menu[m[1][0]-'1'].Code
		}
		break
	}

	lower := strings.ToLower(text)
	best, bestAt := DecisionUnknown, -1
	for _, entry := range Menu {
		for _, kw := range entry.keywords {
			if at := strings.Index(lower, kw); at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = entry.Code, at
			}
		}
	}
	return best
}

// Label returns the human label of a decision code.
func (d DecisionOption) Label() string {
	for _, e := range Menu {
		if e.Code == d {
			return e.Label
		}
	}
	return "Unknown"
}
