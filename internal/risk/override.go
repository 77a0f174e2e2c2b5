package risk

import "math"

// Lab cut-offs. Hard-coded clinical thresholds, not fitted values.
const (
	GlucoseHigh     = 126.0
	GlucoseModerate = 100.0
	HbA1cHigh       = 6.5
	HbA1cModerate   = 5.7

	HighFloor     = 0.75
	ModerateFloor = 0.45
)

// LabBand classifies the lab values.
type LabBand string

const (
	LabNone     LabBand = "none"
	LabModerate LabBand = "moderate"
	LabHigh     LabBand = "high"
)

// ClassifyLabs maps glucose (mg/dL) and HbA1c (%) to a band. Either value alone
// can put the patient in a band; high wins over moderate.
func ClassifyLabs(glucose, hba1c float64) LabBand {
	switch {
	case glucose >= GlucoseHigh || hba1c >= HbA1cHigh:
		return LabHigh
	case (glucose >= GlucoseModerate && glucose < GlucoseHigh) || (hba1c >= HbA1cModerate && hba1c < HbA1cHigh):
		return LabModerate
	default:
		return LabNone
	}
}

// Floor is the minimum probability a band enforces.
func (b LabBand) Floor() float64 {
	switch b {
	case LabHigh:
		return HighFloor
	case LabModerate:
		return ModerateFloor
	}
	return 0
}

// Override raises p to the floor of the lab band. It never lowers p.
func Override(p, glucose, hba1c float64) float64 {
	return ApplyOverride(p, glucose, hba1c).After
}

// OverrideResult records what the override did.
type OverrideResult struct {
	Band    LabBand `json:"band"`
	Floor   float64 `json:"floor"`
	Applied bool    `json:"applied"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
}

// ApplyOverride is Override with the decision spelled out.
func ApplyOverride(p, glucose, hba1c float64) OverrideResult {
	band := ClassifyLabs(glucose, hba1c)
	res := OverrideResult{Band: band, Floor: band.Floor(), Before: p, After: p}
	if band != LabNone && p < res.Floor {
		res.After = math.Max(p, res.Floor)
		res.Applied = true
	}
	return res
}
