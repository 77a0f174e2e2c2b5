package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Slot names one of the five classifier roles in the consensus.
type Slot string

const (
	SlotTreeA    Slot = "tree_a"
	SlotTreeB    Slot = "tree_b"
	SlotStacked  Slot = "stacked"
	SlotLinear   Slot = "linear"
	SlotNeighbor Slot = "neighbor"
)

// Slots lists every slot in consensus order.
var Slots = []Slot{SlotTreeA, SlotTreeB, SlotStacked, SlotLinear, SlotNeighbor}

// IsTreeSlot reports whether the slot must hold a tree ensemble.
func IsTreeSlot(s Slot) bool {
	return s == SlotTreeA || s == SlotTreeB
}

// UsesScaledRow reports whether the slot's classifier was fitted on scaled features.
func UsesScaledRow(s Slot) bool {
	return s == SlotLinear || s == SlotNeighbor
}

// ManifestFile is the entry point of a bank directory.
const ManifestFile = "manifest.json"

// Manifest describes a bank directory.
type Manifest struct {
	SchemaVersion int             `json:"schema_version"`
	Version       string          `json:"version"`
	TrainedAt     time.Time       `json:"trained_at"`
	Features      []string        `json:"features"`
	Scaler        string          `json:"scaler"`
	Classifiers   map[Slot]string `json:"classifiers"`
}

// BankParts are the in-memory pieces NewBank assembles.
type BankParts struct {
	Version     string
	TrainedAt   time.Time
	Features    []string
	Scaler      *Scaler
	Classifiers map[Slot]Classifier
}

// Bank is the immutable set of fitted models. All methods are safe for
// concurrent use; nothing is mutated after construction.
type Bank struct {
	version     string
	trainedAt   time.Time
	features    []string
	scaler      *Scaler
	classifiers map[Slot]Classifier
}

// ModelInfo summarises a loaded bank.
type ModelInfo struct {
	Version     string          `json:"version"`
	TrainedAt   time.Time       `json:"trained_at"`
	NumFeatures int             `json:"num_features"`
	Features    []string        `json:"features"`
	Classifiers map[Slot]string `json:"classifiers"`
}

// NewBank validates parts and returns an immutable bank. Every classifier and the
// scaler must agree with the canonical feature count, and both tree slots must
// hold tree ensembles.
func NewBank(parts BankParts) (*Bank, error) {
	if len(parts.Features) == 0 {
		return nil, &ArtifactError{Err: errors.New("empty canonical feature order")}
	}
	seen := make(map[string]struct{}, len(parts.Features))
	for _, f := range parts.Features {
		if f == "" {
			return nil, &ArtifactError{Err: errors.New("empty feature name")}
		}
		if _, dup := seen[f]; dup {
			return nil, &ArtifactError{Err: fmt.Errorf("duplicate feature %q", f)}
		}
		seen[f] = struct{}{}
	}
	n := len(parts.Features)

	if parts.Scaler == nil {
		return nil, &ArtifactError{Err: errors.New("scaler is required")}
	}
	if parts.Scaler.NumFeatures() != n {
		return nil, &ArtifactError{Err: fmt.Errorf("scaler has %d features, canonical order has %d", parts.Scaler.NumFeatures(), n)}
	}

	classifiers := make(map[Slot]Classifier, len(Slots))
	for _, slot := range Slots {
		c, ok := parts.Classifiers[slot]
		if !ok || c == nil {
			return nil, &ArtifactError{Slot: slot, Err: errors.New("classifier missing")}
		}
		if c.NumFeatures() != n {
			return nil, &ArtifactError{Slot: slot, Err: fmt.Errorf("%s has %d features, canonical order has %d", c.Kind(), c.NumFeatures(), n)}
		}
		if IsTreeSlot(slot) {
			if _, ok := c.(TreeExplainer); !ok {
				return nil, &ArtifactError{Slot: slot, Err: fmt.Errorf("kind %s is not a tree ensemble", c.Kind())}
			}
		}
		classifiers[slot] = c
	}
	for slot := range parts.Classifiers {
		if _, ok := classifiers[slot]; !ok {
			return nil, &ArtifactError{Slot: slot, Err: errors.New("unknown slot")}
		}
	}

	return &Bank{
		version:     parts.Version,
		trainedAt:   parts.TrainedAt,
		features:    append([]string(nil), parts.Features...),
		scaler:      parts.Scaler,
		classifiers: classifiers,
	}, nil
}

// LoadBank reads manifest.json and every artifact it references from dir.
func LoadBank(dir string) (*Bank, error) {
	manifestPath := filepath.Join(dir, ManifestFile)
	var m Manifest
	if err := readJSON(manifestPath, &m); err != nil {
		return nil, &ArtifactError{Path: manifestPath, Err: err}
	}
	if m.SchemaVersion != SchemaVersion {
		return nil, &ArtifactError{Path: manifestPath, Err: fmt.Errorf("schema version %d, want %d", m.SchemaVersion, SchemaVersion)}
	}
	if m.Scaler == "" {
		return nil, &ArtifactError{Path: manifestPath, Err: errors.New("no scaler artifact named")}
	}

	scalerPath := filepath.Join(dir, m.Scaler)
	var scalerFile struct {
		SchemaVersion int `json:"schema_version"`
		Scaler
	}
	if err := readJSON(scalerPath, &scalerFile); err != nil {
		return nil, &ArtifactError{Path: scalerPath, Err: err}
	}
	if scalerFile.SchemaVersion != SchemaVersion {
		return nil, &ArtifactError{Path: scalerPath, Err: fmt.Errorf("schema version %d, want %d", scalerFile.SchemaVersion, SchemaVersion)}
	}
	scaler := scalerFile.Scaler
	if err := scaler.validate(); err != nil {
		return nil, &ArtifactError{Path: scalerPath, Err: err}
	}

	classifiers := make(map[Slot]Classifier, len(Slots))
	for slot, file := range m.Classifiers {
		path := filepath.Join(dir, file)
		c, err := loadClassifier(path, m.Features)
		if err != nil {
			return nil, &ArtifactError{Path: path, Slot: slot, Err: err}
		}
		classifiers[slot] = c
	}

	bank, err := NewBank(BankParts{
		Version:     m.Version,
		TrainedAt:   m.TrainedAt,
		Features:    m.Features,
		Scaler:      &scaler,
		Classifiers: classifiers,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model_dir", dir).
		Str("version", m.Version).
		Int("features", len(m.Features)).
		Msg("model bank loaded")
	return bank, nil
}

func loadClassifier(path string, features []string) (Classifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head artifactHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if head.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("schema version %d, want %d", head.SchemaVersion, SchemaVersion)
	}
	if head.NFeatures != len(features) {
		return nil, fmt.Errorf("declares %d features, canonical order has %d", head.NFeatures, len(features))
	}
	if head.FeatureNames != nil {
		if len(head.FeatureNames) != len(features) {
			return nil, fmt.Errorf("declares %d feature names, canonical order has %d", len(head.FeatureNames), len(features))
		}
		for i, name := range head.FeatureNames {
			if name != features[i] {
				return nil, fmt.Errorf("feature %d is %q, canonical order has %q", i, name, features[i])
			}
		}
	}
	c, err := decodeClassifier(raw)
	if err != nil {
		return nil, err
	}
	if c.NumFeatures() != head.NFeatures {
		return nil, fmt.Errorf("%s evaluates %d features but declares %d", c.Kind(), c.NumFeatures(), head.NFeatures)
	}
	return c, nil
}

func readJSON(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// WriteBank persists b to dir in the format LoadBank reads. Existing files are overwritten.
func WriteBank(dir string, b *Bank) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	m := Manifest{
		SchemaVersion: SchemaVersion,
		Version:       b.version,
		TrainedAt:     b.trainedAt,
		Features:      b.Features(),
		Scaler:        "scaler.json",
		Classifiers:   make(map[Slot]string, len(Slots)),
	}

	scalerDoc := map[string]any{
		"schema_version": SchemaVersion,
		"mean":           b.scaler.Mean,
		"scale":          b.scaler.Scale,
	}
	if err := writeJSON(filepath.Join(dir, m.Scaler), scalerDoc); err != nil {
		return err
	}

	for _, slot := range Slots {
		doc, err := encodeClassifier(b.classifiers[slot])
		if err != nil {
			return fmt.Errorf("encode %s: %w", slot, err)
		}
		doc["schema_version"] = SchemaVersion
		doc["feature_names"] = m.Features
		file := string(slot) + ".json"
		if err := writeJSON(filepath.Join(dir, file), doc); err != nil {
			return err
		}
		m.Classifiers[slot] = file
	}

	return writeJSON(filepath.Join(dir, ManifestFile), m)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Features returns a copy of the canonical feature order.
func (b *Bank) Features() []string {
	return append([]string(nil), b.features...)
}

// NumFeatures is the length of the canonical feature order.
func (b *Bank) NumFeatures() int { return len(b.features) }

// Version is the bank version from the manifest.
func (b *Bank) Version() string { return b.version }

// Classifier returns the classifier in slot, or nil for an unknown slot.
func (b *Bank) Classifier(slot Slot) Classifier {
	return b.classifiers[slot]
}

// Explainer returns the tree ensemble in slot.
func (b *Bank) Explainer(slot Slot) (TreeExplainer, error) {
	c, ok := b.classifiers[slot]
	if !ok {
		return nil, fmt.Errorf("unknown slot %q", slot)
	}
	te, ok := c.(TreeExplainer)
	if !ok {
		return nil, fmt.Errorf("slot %s holds %s, not a tree ensemble", slot, c.Kind())
	}
	return te, nil
}

// Scale returns the scaled copy of an aligned row.
func (b *Bank) Scale(row []float64) ([]float64, error) {
	return b.scaler.Transform(row)
}

// Info summarises the bank for status endpoints.
func (b *Bank) Info() ModelInfo {
	kinds := make(map[Slot]string, len(b.classifiers))
	for slot, c := range b.classifiers {
		kinds[slot] = c.Kind()
	}
	return ModelInfo{
		Version:     b.version,
		TrainedAt:   b.trainedAt,
		NumFeatures: len(b.features),
		Features:    b.Features(),
		Classifiers: kinds,
	}
}
