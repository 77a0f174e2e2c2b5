package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Scaler is a fitted standard scaler: (x - mean) / scale per column.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewScaler returns a validated scaler.
func NewScaler(mean, scale []float64) (*Scaler, error) {
	s := &Scaler{Mean: mean, Scale: scale}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler: empty mean")
	}
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler: %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	for i := range s.Mean {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("scaler: column %d is not finite", i)
		}
		if s.Scale[i] < 0 {
			return fmt.Errorf("scaler: column %d has negative scale", i)
		}
	}
	return nil
}

// NumFeatures is the column count the scaler was fitted on.
func (s *Scaler) NumFeatures() int { return len(s.Mean) }

// Transform returns a scaled copy of row; row itself is not modified.
// A zero scale (constant column at fit time) is treated as 1.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: expected %d features, got %d", len(s.Mean), len(row))
	}
	out := floats.SubTo(make([]float64, len(row)), row, s.Mean)
	floats.Div(out, s.divisors())
	return out, nil
}

func (s *Scaler) divisors() []float64 {
	d := make([]float64, len(s.Scale))
	for i, v := range s.Scale {
		if v == 0 {
			v = 1
		}
		d[i] = v
	}
	return d
}
