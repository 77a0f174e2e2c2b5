package narrative

import (
	"fmt"
	"strconv"
	"strings"

	"sifra/internal/risk"
)

// DecisionInput feeds the planning agent.
type DecisionInput struct {
	RiskScore float64
	Glucose   float64
	HbA1c     float64
}

// ReportInput feeds the reasoning agent.
type ReportInput struct {
	Name      string
	RiskScore float64
	Glucose   float64
	HbA1c     float64
	Drivers   []risk.FeatureImpact
}

// Percent renders a probability as a percentage with two decimals.
func Percent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

func lab(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func decisionPrompt(in DecisionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk Score: %s\n", Percent(in.RiskScore))
	fmt.Fprintf(&b, "Glucose: %s\n", lab(in.Glucose))
	fmt.Fprintf(&b, "HbA1c: %s\n\n", lab(in.HbA1c))
	b.WriteString("Choose one:\n")
	for _, m := range Menu {
		fmt.Fprintf(&b, "%d. %s\n", m.Number, m.Label)
	}
	b.WriteString("\nReturn number + short justification.\n")
	return b.String()
}

func reportPrompt(in ReportInput) string {
	var b strings.Builder
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Unnamed patient"
	}
	fmt.Fprintf(&b, "Patient: %s\n", name)
	fmt.Fprintf(&b, "Risk Score: %s\n\n", Percent(in.RiskScore))
	fmt.Fprintf(&b, "Glucose: %s\n", lab(in.Glucose))
	fmt.Fprintf(&b, "HbA1c: %s\n\n", lab(in.HbA1c))
	b.WriteString("Top Risk Drivers:\n")
	b.WriteString(DriversTable(in.Drivers))
	b.WriteString("\nGenerate structured clinical report.\n")
	return b.String()
}

// DriversTable renders attributions as an aligned two-column table.
func DriversTable(drivers []risk.FeatureImpact) string {
	if len(drivers) == 0 {
		return "(none)\n"
	}
	width := len("Feature")
	for _, d := range drivers {
		if len(d.Feature) > width {
			width = len(d.Feature)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %s\n", width, "Feature", "Impact")
	for _, d := range drivers {
		fmt.Fprintf(&b, "%-*s  %+.4f\n", width, d.Feature, d.Impact)
	}
	return b.String()
}

func documentPrompt(text string) string {
	return "Medical Report:\n" + strings.TrimSpace(text) + "\n\nPlease analyze and give precautionary measures."
}
