// Package clarify decides whether a build request has enough detail to start
// and, when it does not, drives a one-question-at-a-time dialog per user.
package clarify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"go.uber.org/zap"
)

// GenericQuestion is asked when the oracle cannot judge a non-trivial request.
const GenericQuestion = "Could you share a bit more detail about what you need?"

// ErrNotGathering is returned by Answer when no question is outstanding.
var ErrNotGathering = errors.New("no clarifying question outstanding")

const clarifyInstructions = `You decide whether a software request has enough information to start work.
Only ask when the missing information would materially change what gets delivered
(scope, data, audience, integrations). Never ask about visual style, colors, fonts,
naming, frameworks, languages or other implementation details; choose sensible defaults.
Ask at most one question.
Reply with one JSON object and nothing else:
{"proceed":true|false,"question":"the single question, empty when proceeding",
 "clarifiedRequest":"the request restated with every answer folded in",
 "requirements":["concrete requirement", "..."]}`

// Request is the input to one evaluation.
type Request struct {
	Description string
	Complexity  intent.Complexity
	Exchanges   []conversation.Exchange
}

// Result is the outcome of one evaluation.
type Result struct {
	ShouldProceed    bool     `json:"shouldProceed"`
	NextQuestion     string   `json:"nextQuestion,omitempty"`
	ClarifiedRequest string   `json:"clarifiedRequest"`
	Requirements     []string `json:"extractedRequirements"`
}

// Outcome is a Result together with the intent it belongs to.
type Outcome struct {
	Result
	Intent intent.Scored
}

// Clarifier evaluates requests against the oracle with a deterministic fallback.
type Clarifier struct {
	oracle    oracle.Oracle
	maxRounds int
	logger    *zap.Logger
}

// New creates a clarifier. maxRounds caps how many questions one request may get.
func New(o oracle.Oracle, maxRounds int, logger *zap.Logger) *Clarifier {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &Clarifier{oracle: o, maxRounds: maxRounds, logger: logger}
}

type verdict struct {
	Proceed          bool     `json:"proceed"`
	Question         string   `json:"question"`
	ClarifiedRequest string   `json:"clarifiedRequest"`
	Requirements     []string `json:"requirements"`
}

// Evaluate judges one request. It never fails; oracle problems select the
// fallback policy.
func (c *Clarifier) Evaluate(ctx context.Context, req Request) Result {
	if len(req.Exchanges) >= c.maxRounds {
		return proceed(req, nil)
	}

	res := oracle.AskJSON(ctx, c.oracle, oracle.Prompt{
		Purpose:      oracle.PurposeClarify,
		Instructions: clarifyInstructions,
		Body:         clarifyBody(req),
		MaxTokens:    600,
	}, func(v *verdict) error {
		if !v.Proceed && strings.TrimSpace(v.Question) == "" {
			return errors.New("no question given for proceed=false")
		}
		return nil
	})
	if !res.OK {
		c.logger.Warn("clarifier falling back", zap.Error(res.Err))
		return c.fallback(req)
	}

	v := res.Value
	if v.Proceed || IsStyleQuestion(v.Question) {
		r := proceed(req, v.Requirements)
		if s := strings.TrimSpace(v.ClarifiedRequest); s != "" {
			r.ClarifiedRequest = s
		}
		return r
	}
	return Result{
		NextQuestion:     strings.TrimSpace(v.Question),
		ClarifiedRequest: fold(req),
		Requirements:     v.Requirements,
	}
}

// fallback proceeds on simple requests and otherwise asks the generic
// question once.
func (c *Clarifier) fallback(req Request) Result {
	if req.Complexity == intent.Simple {
		return proceed(req, nil)
	}
	for _, ex := range req.Exchanges {
		if ex.Question == GenericQuestion {
			return proceed(req, nil)
		}
	}
	return Result{NextQuestion: GenericQuestion, ClarifiedRequest: fold(req)}
}

// Begin starts clarification of a build intent for the user owning c.
func (c *Clarifier) Begin(ctx context.Context, cc *conversation.Context, in intent.Scored) Outcome {
	cc.ResetClarification()
	r := c.Evaluate(ctx, Request{
		Description: in.Parameters.Description,
		Complexity:  in.EstimatedComplexity,
	})
	return c.settle(cc, in, r)
}

// Answer folds the user's reply into the outstanding clarification and
// re-evaluates it.
func (c *Clarifier) Answer(ctx context.Context, cc *conversation.Context, answer string) (Outcome, error) {
	if !cc.Gathering || cc.PendingIntent == nil {
		return Outcome{}, ErrNotGathering
	}
	in := *cc.PendingIntent
	cc.Exchanges = append(cc.Exchanges, conversation.Exchange{
		Question: cc.OutstandingQuestion,
		Answer:   strings.TrimSpace(answer),
	})
	r := c.Evaluate(ctx, Request{
		Description: in.Parameters.Description,
		Complexity:  in.EstimatedComplexity,
		Exchanges:   cc.Exchanges,
	})
	return c.settle(cc, in, r), nil
}

func (c *Clarifier) settle(cc *conversation.Context, in intent.Scored, r Result) Outcome {
	if r.ShouldProceed {
		cc.ResetClarification()
		cc.ClarifiedRequest = r.ClarifiedRequest
		return Outcome{Result: r, Intent: in}
	}
	cc.PendingIntent = &in
	cc.Gathering = true
	cc.OutstandingQuestion = r.NextQuestion
	if r.NextQuestion == GenericQuestion {
		cc.GenericAsked = true
	}
	return Outcome{Result: r, Intent: in}
}

func proceed(req Request, requirements []string) Result {
	if len(requirements) == 0 {
		for _, ex := range req.Exchanges {
			if ex.Answer != "" {
				requirements = append(requirements, ex.Answer)
			}
		}
	}
	return Result{ShouldProceed: true, ClarifiedRequest: fold(req), Requirements: requirements}
}

// fold merges the original description with every answer given so far.
func fold(req Request) string {
	var answers []string
	for _, ex := range req.Exchanges {
		if ex.Answer != "" {
			answers = append(answers, ex.Answer)
		}
	}
	desc := strings.TrimSpace(req.Description)
	if len(answers) == 0 {
		return desc
	}
	return fmt.Sprintf("%s (details: %s)", desc, strings.Join(answers, "; "))
}

func clarifyBody(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\nEstimated complexity: %s\n", req.Description, req.Complexity)
	if len(req.Exchanges) > 0 {
		b.WriteString("Questions already answered:\n")
		for _, ex := range req.Exchanges {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
	}
	return b.String()
}

var styleTerms = [][]string{
	{"color"}, {"colour"}, {"font"}, {"style"}, {"styling"}, {"theme"}, {"css"},
	{"look", "and", "feel"}, {"framework"}, {"ui", "library"}, {"component", "library"},
	{"programming", "language"}, {"naming"}, {"variable", "name"}, {"dark", "mode"},
	{"tailwind"}, {"bootstrap"}, {"react"}, {"vue"}, {"typescript"},
}

// IsStyleQuestion reports whether q asks about presentation or
// implementation detail rather than what gets delivered. Terms match whole
// words; a trailing plural s is accepted.
func IsStyleQuestion(q string) bool {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i := range words {
		for _, t := range styleTerms {
			if hasPhrase(words[i:], t) {
				return true
			}
		}
	}
	return false
}

func hasPhrase(words, phrase []string) bool {
	if len(words) < len(phrase) {
		return false
	}
	for j, p := range phrase {
		w := words[j]
		if w != p && w != p+"s" {
			return false
		}
	}
	return true
}
