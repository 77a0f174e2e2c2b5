// Package analysis runs one diabetes-risk assessment end to end: consensus
// scoring, the clinical lab override, feature attribution, the narrative
// agents and, when a history store is configured, persistence.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sifra/internal/ml"
	"sifra/internal/narrative"
	"sifra/internal/risk"
	"sifra/internal/storage"
)

// Unavailable replaces a narrative field whose agent failed.
const Unavailable = "unavailable"

// Narrative status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Agent names used in metrics and narrative error maps.
const (
	AgentPlanning  = "planning"
	AgentReasoning = "reasoning"
)

// DefaultNarrativeTimeout bounds each narrative agent call.
const DefaultNarrativeTimeout = 90 * time.Second

// MetricsInterface is the subset of metrics the pipeline reports to.
type MetricsInterface interface {
	AnalysesInc()
	InputRejectedInc()
	ScoringFailuresInc()
	OverrideInc(band string)
	NarrativeFailureInc(agent string)
	RiskScoreObserve(v float64)
	ScoringLatencyObserve(v float64)
	AnalysisDurationObserve(v float64)
	StoreFailuresInc()
}

type noopMetrics struct{}

func (noopMetrics) AnalysesInc()                    {}
func (noopMetrics) InputRejectedInc()               {}
func (noopMetrics) ScoringFailuresInc()             {}
func (noopMetrics) OverrideInc(string)              {}
func (noopMetrics) NarrativeFailureInc(string)      {}
func (noopMetrics) RiskScoreObserve(float64)        {}
func (noopMetrics) ScoringLatencyObserve(float64)   {}
func (noopMetrics) AnalysisDurationObserve(float64) {}
func (noopMetrics) StoreFailuresInc()               {}

// Narrator produces the decision label and the report. *narrative.Agents
// implements it.
type Narrator interface {
	Decide(ctx context.Context, in narrative.DecisionInput) (string, error)
	Report(ctx context.Context, in narrative.ReportInput) (string, error)
}

// Request is one assessment request.
type Request struct {
	Name     string         `json:"name"`
	Features map[string]any `json:"features"`
	Glucose  float64        `json:"glucose"`
	HbA1c    float64        `json:"hba1c"`
}

// Narrative reports how the language-model part of an assessment went.
type Narrative struct {
	Status string            `json:"status"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Result is a completed assessment.
type Result struct {
	ID             string                   `json:"id"`
	Name           string                   `json:"name"`
	RiskScore      float64                  `json:"risk_score"`
	ConsensusScore float64                  `json:"consensus_score"`
	RiskLevel      risk.Level               `json:"risk_level"`
	Override       risk.OverrideResult      `json:"override"`
	TopFeatures    []risk.FeatureImpact     `json:"top_features"`
	Components     map[ml.Slot]float64      `json:"components"`
	Decision       string                   `json:"decision"`
	DecisionCode   narrative.DecisionOption `json:"decision_code"`
	Report         string                   `json:"report"`
	Evaluation     string                   `json:"evaluation"`
	Narrative      Narrative                `json:"narrative"`
	ModelVersion   string                   `json:"model_version"`
	CreatedAt      time.Time                `json:"created_at"`
}

// Options tunes an Analyzer. Zero values take defaults.
type Options struct {
	NarrativeTimeout time.Duration
	Store            storage.Store
	Metrics          MetricsInterface
	Now              func() time.Time
}

// Analyzer runs assessments. It is safe for concurrent use.
type Analyzer struct {
	scorer    *risk.Scorer
	explainer *risk.Explainer
	narrator  Narrator
	version   string

	timeout time.Duration
	store   storage.Store
	metrics MetricsInterface
	now     func() time.Time
}

// New wires an Analyzer. narrator may be nil, in which case every assessment
// is returned with a degraded narrative.
func New(bank *ml.Bank, scorer *risk.Scorer, explainer *risk.Explainer, narrator Narrator, opts Options) (*Analyzer, error) {
	if bank == nil || scorer == nil || explainer == nil {
		return nil, errors.New("analysis: bank, scorer and explainer are required")
	}
	a := &Analyzer{
		scorer:    scorer,
		explainer: explainer,
		narrator:  narrator,
		version:   bank.Version(),
		timeout:   opts.NarrativeTimeout,
		store:     opts.Store,
		metrics:   opts.Metrics,
		now:       opts.Now,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultNarrativeTimeout
	}
	if a.metrics == nil {
		a.metrics = noopMetrics{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Analyze runs one assessment. Input problems return *risk.InputError and
// model problems *risk.ScoringError; narrative and storage problems never fail
// the call.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	fv, err := a.validate(req)
	if err != nil {
		a.metrics.InputRejectedInc()
		return nil, err
	}

	scoreStart := time.Now()
	consensus, err := a.scorer.Score(fv)
	if err != nil {
		a.metrics.ScoringFailuresInc()
		return nil, err
	}
	attribution, err := a.explainer.Explain(consensus.Row)
	if err != nil {
		a.metrics.ScoringFailuresInc()
		return nil, err
	}
	a.metrics.ScoringLatencyObserve(time.Since(scoreStart).Seconds())

	ov := risk.ApplyOverride(consensus.Probability, req.Glucose, req.HbA1c)
	if ov.Applied {
		a.metrics.OverrideInc(string(ov.Band))
	}

	res := &Result{
		ID:             uuid.NewString(),
		Name:           req.Name,
		RiskScore:      ov.After,
		ConsensusScore: consensus.Probability,
		RiskLevel:      risk.RiskLevel(ov.After),
		Override:       ov,
		TopFeatures:    attribution.Top,
		Components:     consensus.Components,
		ModelVersion:   a.version,
		CreatedAt:      a.now().UTC(),
	}

	a.narrate(ctx, req, res)
	res.Evaluation = Evaluate(res)

	a.persist(ctx, res)

	a.metrics.AnalysesInc()
	a.metrics.RiskScoreObserve(res.RiskScore)
	a.metrics.AnalysisDurationObserve(time.Since(start).Seconds())

	log.Info().
		Str("id", res.ID).
		Float64("risk_score", res.RiskScore).
		Float64("consensus", res.ConsensusScore).
		Str("band", string(ov.Band)).
		Str("explained_by", string(a.explainer.Slot())).
		Str("decision", string(res.DecisionCode)).
		Str("narrative", res.Narrative.Status).
		Msg("Assessment completed")

	return res, nil
}

func (a *Analyzer) validate(req Request) (risk.FeatureVector, error) {
	if req.Features == nil {
		return nil, &risk.InputError{Field: "features", Reason: "is required"}
	}
	fv, err := risk.ParseFeatureVector(req.Features)
	if err != nil {
		return nil, err
	}
	if err := risk.CheckFinite("glucose", req.Glucose); err != nil {
		return nil, err
	}
	if err := risk.CheckFinite("hba1c", req.HbA1c); err != nil {
		return nil, err
	}
	return fv, nil
}

// narrate runs both agents concurrently, each under its own timeout.
func (a *Analyzer) narrate(ctx context.Context, req Request, res *Result) {
	res.Decision, res.Report = Unavailable, Unavailable
	res.DecisionCode = narrative.DecisionUnknown

	errs := map[string]string{}
	if a.narrator == nil {
		errs[AgentPlanning] = "narrative agents not configured"
		errs[AgentReasoning] = "narrative agents not configured"
		res.Narrative = Narrative{Status: StatusDegraded, Errors: errs}
		return
	}

	var (
		wg        sync.WaitGroup
		decision  string
		report    string
		decideErr error
		reportErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		decision, decideErr = a.narrator.Decide(cctx, narrative.DecisionInput{
			RiskScore: res.RiskScore,
			Glucose:   req.Glucose,
			HbA1c:     req.HbA1c,
		})
	}()
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		report, reportErr = a.narrator.Report(cctx, narrative.ReportInput{
			Name:      req.Name,
			RiskScore: res.RiskScore,
			Glucose:   req.Glucose,
			HbA1c:     req.HbA1c,
			Drivers:   res.TopFeatures,
		})
	}()
	wg.Wait()

	if decideErr != nil {
		a.metrics.NarrativeFailureInc(AgentPlanning)
		errs[AgentPlanning] = decideErr.Error()
		log.Warn().Err(decideErr).Str("agent", AgentPlanning).Msg("Narrative agent failed")
	} else {
		res.Decision = decision
		res.DecisionCode = narrative.ParseDecision(decision)
	}
	if reportErr != nil {
		a.metrics.NarrativeFailureInc(AgentReasoning)
		errs[AgentReasoning] = reportErr.Error()
		log.Warn().Err(reportErr).Str("agent", AgentReasoning).Msg("Narrative agent failed")
	} else {
		res.Report = report
	}

	res.Narrative = Narrative{Status: StatusOK}
	if len(errs) > 0 {
		res.Narrative = Narrative{Status: StatusDegraded, Errors: errs}
	}
}

func (a *Analyzer) persist(ctx context.Context, res *Result) {
	if a.store == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		a.metrics.StoreFailuresInc()
		log.Error().Err(err).Str("id", res.ID).Msg("Failed to encode assessment")
		return
	}
	rec := storage.Record{
		ID:           res.ID,
		Name:         strings.TrimSpace(res.Name),
		CreatedAt:    res.CreatedAt,
		RiskScore:    res.RiskScore,
		RiskLevel:    string(res.RiskLevel),
		OverrideBand: string(res.Override.Band),
		DecisionCode: string(res.DecisionCode),
		ModelVersion: res.ModelVersion,
		Payload:      payload,
	}
	if err := a.store.Save(ctx, rec); err != nil {
		a.metrics.StoreFailuresInc()
		log.Error().Err(err).Str("id", res.ID).Msg("Failed to store assessment")
	}
}
