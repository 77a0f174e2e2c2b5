// Package narrative turns a scored assessment into clinician-facing text through
// an injected text-completion service.
//
// Nothing here is on the scoring path: callers treat every error from this
// package as a degraded result, never as a failed assessment.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Completer is a synchronous text-completion service.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ErrEmptyCompletion is returned when the service answers with blank text.
var ErrEmptyCompletion = errors.New("empty completion")

// Temperatures are the sampling temperatures per agent.
type Temperatures struct {
	Planning  float64 `yaml:"planning"`
	Reasoning float64 `yaml:"reasoning"`
	Chat      float64 `yaml:"chat"`
	Document  float64 `yaml:"document"`
}

// DefaultTemperatures keeps the planning agent close to deterministic and gives
// the document reader the most room.
func DefaultTemperatures() Temperatures {
	return Temperatures{Planning: 0.2, Reasoning: 0.3, Chat: 0.3, Document: 0.5}
}

// Persona is the system prompt for free-form conversations.
const Persona = "You are SIFRA, a clinical AI assistant."

// Agents wraps a Completer with the prompts of each agent.
type Agents struct {
	completer Completer
	temps     Temperatures
}

// NewAgents returns agents backed by c.
func NewAgents(c Completer, temps Temperatures) *Agents {
	return &Agents{completer: c, temps: temps}
}

// Decide asks the planning agent to pick one entry of the decision menu.
func (a *Agents) Decide(ctx context.Context, in DecisionInput) (string, error) {
	msgs := []Message{{Role: RoleUser, Content: decisionPrompt(in)}}
	out, err := a.complete(ctx, msgs, a.temps.Planning)
	if err != nil {
		return "", fmt.Errorf("planning agent: %w", err)
	}
	return out, nil
}

// Report asks the reasoning agent for a structured clinical report.
func (a *Agents) Report(ctx context.Context, in ReportInput) (string, error) {
	msgs := []Message{{Role: RoleUser, Content: reportPrompt(in)}}
	out, err := a.complete(ctx, msgs, a.temps.Reasoning)
	if err != nil {
		return "", fmt.Errorf("reasoning agent: %w", err)
	}
	return out, nil
}

// Chat answers a free-form question in the assistant persona.
func (a *Agents) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("chat: message is empty")
	}
	msgs := []Message{
		{Role: RoleSystem, Content: Persona},
		{Role: RoleUser, Content: message},
	}
	out, err := a.complete(ctx, msgs, a.temps.Chat)
	if err != nil {
		return "", fmt.Errorf("chat agent: %w", err)
	}
	return out, nil
}

// AnalyzeDocument reviews the text of an uploaded medical report.
func (a *Agents) AnalyzeDocument(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("document agent: document has no text")
	}
	msgs := []Message{
		{Role: RoleSystem, Content: Persona},
		{Role: RoleUser, Content: documentPrompt(text)},
	}
	out, err := a.complete(ctx, msgs, a.temps.Document)
	if err != nil {
		return "", fmt.Errorf("document agent: %w", err)
	}
	return out, nil
}

func (a *Agents) complete(ctx context.Context, msgs []Message, temperature float64) (string, error) {
	if a == nil || a.completer == nil {
		return "", errors.New("no completer configured")
	}
	out, err := a.completer.Complete(ctx, msgs, temperature)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
