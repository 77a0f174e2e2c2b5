package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion is the only artifact schema this build understands.
const SchemaVersion = 1

// ArtifactError reports a model artifact that could not be read or does not
// match the bank's schema. It is always fatal at start-up.
type ArtifactError struct {
	Path string
	Slot Slot
	Err  error
}

func (e *ArtifactError) Error() string {
	switch {
	case e.Path != "" && e.Slot != "":
		return fmt.Sprintf("model artifact %s (%s): %v", e.Path, e.Slot, e.Err)
	case e.Path != "":
		return fmt.Sprintf("model artifact %s: %v", e.Path, e.Err)
	case e.Slot != "":
		return fmt.Sprintf("model slot %s: %v", e.Slot, e.Err)
	default:
		return fmt.Sprintf("model bank: %v", e.Err)
	}
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// artifactHeader is the part common to every top-level classifier file.
type artifactHeader struct {
	SchemaVersion int      `json:"schema_version"`
	Kind          string   `json:"kind"`
	NFeatures     int      `json:"n_features"`
	FeatureNames  []string `json:"feature_names,omitempty"`
}

type pipelineSpec struct {
	Scaler    *Scaler         `json:"scaler"`
	Estimator json.RawMessage `json:"estimator"`
}

type stackingSpec struct {
	NFeatures   int                 `json:"n_features"`
	Estimators  []json.RawMessage   `json:"estimators"`
	Final       *LogisticRegression `json:"final_estimator"`
	Passthrough bool                `json:"passthrough"`
}

// decodeClassifier builds a classifier from its JSON spec. Nested specs (pipeline
// estimators, stacking base estimators) use the same format without the schema header.
func decodeClassifier(raw []byte) (Classifier, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode kind: %w", err)
	}

	switch head.Kind {
	case KindRandomForest:
		var rf RandomForest
		if err := json.Unmarshal(raw, &rf); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if err := rf.init(); err != nil {
			return nil, err
		}
		return &rf, nil

	case KindGradientBoosting:
		var gb GradientBoosting
		if err := json.Unmarshal(raw, &gb); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if err := gb.init(); err != nil {
			return nil, err
		}
		return &gb, nil

	case KindLogisticRegression:
		var lr LogisticRegression
		if err := json.Unmarshal(raw, &lr); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if err := lr.validate(); err != nil {
			return nil, err
		}
		return &lr, nil

	case KindKNN:
		var k KNN
		if err := json.Unmarshal(raw, &k); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if err := k.validate(); err != nil {
			return nil, err
		}
		return &k, nil

	case KindGaussianNB:
		var nb GaussianNB
		if err := json.Unmarshal(raw, &nb); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if err := nb.validate(); err != nil {
			return nil, err
		}
		return &nb, nil

	case KindPipeline:
		var spec pipelineSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if spec.Scaler == nil || len(spec.Estimator) == 0 {
			return nil, errors.New("pipeline: scaler and estimator are required")
		}
		if err := spec.Scaler.validate(); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		est, err := decodeClassifier(spec.Estimator)
		if err != nil {
			return nil, fmt.Errorf("pipeline estimator: %w", err)
		}
		return NewPipeline(spec.Scaler, est)

	case KindStacking:
		var spec stackingSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Kind, err)
		}
		if spec.Final == nil {
			return nil, errors.New("stacking: final_estimator is required")
		}
		if err := spec.Final.validate(); err != nil {
			return nil, fmt.Errorf("stacking final estimator: %w", err)
		}
		base := make([]Classifier, 0, len(spec.Estimators))
		for i, r := range spec.Estimators {
			c, err := decodeClassifier(r)
			if err != nil {
				return nil, fmt.Errorf("stacking estimator %d: %w", i, err)
			}
			base = append(base, c)
		}
		return NewStacking(spec.NFeatures, base, spec.Final, spec.Passthrough)

	case "":
		return nil, errors.New("missing kind")
	default:
		return nil, fmt.Errorf("unknown kind %q", head.Kind)
	}
}

// encodeClassifier is the inverse of decodeClassifier.
func encodeClassifier(c Classifier) (map[string]any, error) {
	out := map[string]any{"kind": c.Kind(), "n_features": c.NumFeatures()}
	switch m := c.(type) {
	case *RandomForest:
		out["trees"] = m.Trees
	case *GradientBoosting:
		out["trees"] = m.Trees
		out["init"] = m.Init
		out["learning_rate"] = m.LearningRate
	case *LogisticRegression:
		out["coef"] = m.Coef
		out["intercept"] = m.Intercept
	case *KNN:
		out["k"] = m.K
		out["points"] = m.Points
		out["labels"] = m.Labels
		if m.Weights != "" {
			out["weights"] = m.Weights
		}
	case *GaussianNB:
		out["priors"] = m.Priors
		out["means"] = m.Means
		out["variances"] = m.Variances
	case *Pipeline:
		est, err := encodeClassifier(m.Estimator)
		if err != nil {
			return nil, err
		}
		out["scaler"] = m.Scaler
		out["estimator"] = est
	case *Stacking:
		base := make([]map[string]any, 0, len(m.Estimators))
		for _, e := range m.Estimators {
			enc, err := encodeClassifier(e)
			if err != nil {
				return nil, err
			}
			base = append(base, enc)
		}
		out["estimators"] = base
		out["final_estimator"] = m.Final
		out["passthrough"] = m.Passthrough
	default:
		return nil, fmt.Errorf("cannot encode classifier of type %T", c)
	}
	return out, nil
}
