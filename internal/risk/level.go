package risk

// Level is the coarse risk band shown to clinicians.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// RiskLevel buckets a probability: below 0.30 low, below 0.60 moderate, else high.
func RiskLevel(p float64) Level {
	switch {
	case p < 0.30:
		return LevelLow
	case p < 0.60:
		return LevelModerate
	default:
		return LevelHigh
	}
}
