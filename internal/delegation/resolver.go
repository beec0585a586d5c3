// Package delegation decides whether a request should be handled locally or
// handed to a registered specialist, and performs the hand-off.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"go.uber.org/zap"
)

// Reasons used when the decision is made without the oracle.
const (
	ReasonNoSpecialists = "no specialists registered"
	ReasonNoneSuitable  = "no suitable specialist"
)

// Decision is the outcome of Decide.
type Decision struct {
	Delegate   bool    `json:"delegate"`
	Specialist string  `json:"specialistName,omitempty"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Handoff is what a specialist receives.
type Handoff struct {
	Utterance string `json:"utterance"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// Forwarder delivers a hand-off to a specialist.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, to Specialist, h Handoff) error
}

const delegateInstructions = `You route requests to specialist assistants.
Delegate only when one specialist clearly owns the topic. Otherwise handle locally.
Reply with one JSON object and nothing else:
{"delegate":true|false,"specialistName":"exact name from the list or empty",
 "reason":"one short sentence","confidence":0.0}`

// Resolver makes and applies delegation decisions.
type Resolver struct {
	registry   *Registry
	oracle     oracle.Oracle
	forwarders []Forwarder
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(registry *Registry, o oracle.Oracle, logger *zap.Logger, forwarders ...Forwarder) *Resolver {
	return &Resolver{registry: registry, oracle: o, forwarders: forwarders, logger: logger}
}

// Registry returns the specialist registry.
func (r *Resolver) Registry() *Registry { return r.registry }

// Decide never fails. With no specialists it does not consult the oracle, and
// without a usable oracle reply the request stays local.
func (r *Resolver) Decide(ctx context.Context, utterance string) Decision {
	if r.registry.Len() == 0 {
		return Decision{Reason: ReasonNoSpecialists}
	}
	online := r.registry.Online()
	if len(online) == 0 {
		return Decision{Reason: ReasonNoneSuitable}
	}

	res := oracle.AskJSON(ctx, r.oracle, oracle.Prompt{
		Purpose:      oracle.PurposeDelegate,
		Instructions: delegateInstructions,
		Body:         delegateBody(utterance, online),
		MaxTokens:    300,
	}, func(d *Decision) error {
		if d.Delegate && strings.TrimSpace(d.Specialist) == "" {
			return errors.New("delegate without specialist name")
		}
		return nil
	})
	if !res.OK {
		r.logger.Warn("delegation oracle failed, handling locally", zap.Error(res.Err))
		return Decision{Reason: ReasonNoneSuitable}
	}

	d := res.Value
	if !d.Delegate {
		if d.Reason == "" {
			d.Reason = ReasonNoneSuitable
		}
		return d
	}
	s, ok := r.registry.Get(d.Specialist)
	if !ok || !s.IsOnline {
		r.logger.Info("oracle chose an unavailable specialist",
			zap.String("specialist", d.Specialist), zap.Bool("known", ok))
		return Decision{Reason: ReasonNoneSuitable}
	}
	d.Specialist = s.Name
	return d
}

// Apply hands the request to the chosen specialist. Forwarding is
// fire-and-forget; only the availability check can fail.
func (r *Resolver) Apply(ctx context.Context, d Decision, h Handoff) error {
	s, ok := r.registry.Get(d.Specialist)
	if !d.Delegate || !ok || !s.IsOnline {
		return fmt.Errorf("%w: %s", ErrNoActiveSpecialist, d.Specialist)
	}
	h.Reason = d.Reason

	fctx := context.WithoutCancel(ctx)
	for _, f := range r.forwarders {
		r.wg.Add(1)
		go func(f Forwarder) {
			defer r.wg.Done()
			if err := f.Forward(fctx, s, h); err != nil {
				r.logger.Warn("specialist forward failed",
					zap.String("forwarder", f.Name()),
					zap.String("specialist", s.Name),
					zap.Error(err))
			}
		}(f)
	}
	r.registry.Touch(ctx, s.Name)
	r.logger.Info("request delegated",
		zap.String("specialist", s.Name),
		zap.String("user", h.UserID),
		zap.String("reason", d.Reason))
	return nil
}

// Wait blocks until in-flight forwards finish.
func (r *Resolver) Wait() { r.wg.Wait() }

// delegateBody lists specialists best match first.
func delegateBody(utterance string, online []Specialist) string {
	ranked := append([]Specialist(nil), online...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return matchScore(ranked[i], utterance) > matchScore(ranked[j], utterance)
	})
	var b strings.Builder
	b.WriteString("Specialists:\n")
	for _, s := range ranked {
		fmt.Fprintf(&b, "- %s: %s. Specialties: %s\n", s.Name, s.Purpose, strings.Join(s.Specialties, ", "))
	}
	fmt.Fprintf(&b, "Request: %s", utterance)
	return b.String()
}
