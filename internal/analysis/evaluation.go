package analysis

import (
	"fmt"
	"math"
	"strings"

	"sifra/internal/ml"
	"sifra/internal/narrative"
	"sifra/internal/risk"
)

// Evaluate renders a deterministic plain-text summary of the numeric side of
// an assessment plus the parsed decision code. It never calls the agents.
func Evaluate(res *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Consensus probability: %s\n", narrative.Percent(res.ConsensusScore))

	ov := res.Override
	switch {
	case ov.Band == risk.LabNone:
		b.WriteString("Clinical override: none (labs within normal range)\n")
	case ov.Applied:
		fmt.Fprintf(&b, "Clinical override: %s lab band raised the score from %s to %s\n",
			ov.Band, narrative.Percent(ov.Before), narrative.Percent(ov.After))
	default:
		fmt.Fprintf(&b, "Clinical override: %s lab band, floor %s already met\n",
			ov.Band, narrative.Percent(ov.Floor))
	}

	fmt.Fprintf(&b, "Final risk score: %s (%s)\n", narrative.Percent(res.RiskScore), res.RiskLevel)
	fmt.Fprintf(&b, "Recommended action: %s\n", res.DecisionCode.Label())

	if len(res.Components) > 0 {
		b.WriteString("\nModel probabilities:\n")
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, slot := range ml.Slots {
			p, ok := res.Components[slot]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-9s %s\n", slot, narrative.Percent(p))
			lo, hi = math.Min(lo, p), math.Max(hi, p)
		}
		spread := (hi - lo) * 100
		fmt.Fprintf(&b, "Model agreement: %s (spread %.2f points)\n", agreement(spread), spread)
	}

	b.WriteString("\nTop drivers:\n")
	b.WriteString(narrative.DriversTable(res.TopFeatures))

	return strings.TrimRight(b.String(), "\n")
}

func agreement(spread float64) string {
	switch {
	case spread < 10:
		return "strong"
	case spread < 25:
		return "moderate"
	default:
		return "weak"
	}
}
