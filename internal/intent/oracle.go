package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
)

const classifyInstructions = `You classify chat requests sent to a software delivery team.
Reply with one JSON object and nothing else:
{"category":"build|modify|analyze|manage|question|conversation",
 "subcategory":"short label; for manage use pause|resume|cancel|status|list",
 "parameters":{"description":"the request restated","target":"work item id if one is named, else empty"},
 "requiredAgents":["roles needed"],
 "estimatedComplexity":"simple|medium|complex|enterprise",
 "confidence":0.0}`

// historyWindow is how many recent turns are embedded in the prompt.
const historyWindow = 6

// OracleClassifier asks the oracle for a structured classification.
type OracleClassifier struct {
	oracle oracle.Oracle
}

// NewOracleClassifier creates an oracle-backed classifier.
func NewOracleClassifier(o oracle.Oracle) *OracleClassifier {
	return &OracleClassifier{oracle: o}
}

func (c *OracleClassifier) Name() string { return "oracle" }

type oracleReply struct {
	Intent
	Confidence *float64 `json:"confidence"`
}

func (c *OracleClassifier) Classify(ctx context.Context, utterance string, hints Hints) (Scored, error) {
	res := oracle.AskJSON(ctx, c.oracle, oracle.Prompt{
		Purpose:      oracle.PurposeClassify,
		Instructions: classifyInstructions,
		Body:         classifyBody(utterance, hints),
		MaxTokens:    400,
	}, func(r *oracleReply) error {
		if err := r.Intent.validate(); err != nil {
			return err
		}
		if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
			return fmt.Errorf("confidence %v out of range", *r.Confidence)
		}
		return nil
	})
	if !res.OK {
		return Scored{}, res.Err
	}

	in := res.Value.Intent
	if strings.TrimSpace(in.Parameters.Description) == "" {
		in.Parameters.Description = strings.TrimSpace(utterance)
	}
	if in.Category == Manage {
		in.Subcategory = normalizeManage(in.Subcategory)
	}
	conf := 0.75
	if res.Value.Confidence != nil {
		conf = *res.Value.Confidence
	}
	return Scored{Intent: in, Confidence: conf, Source: "oracle"}, nil
}

func classifyBody(utterance string, hints Hints) string {
	var b strings.Builder
	if n := len(hints.History); n > 0 {
		b.WriteString("Recent conversation:\n")
		start := 0
		if n > historyWindow {
			start = n - historyWindow
		}
		for _, h := range hints.History[start:] {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteByte('\n')
		}
	}
	if hints.LastWorkItem != "" {
		fmt.Fprintf(&b, "Most recent work item: %s\n", hints.LastWorkItem)
	}
	fmt.Fprintf(&b, "Message: %s", utterance)
	return b.String()
}

func normalizeManage(sub string) string {
	switch strings.ToLower(strings.TrimSpace(sub)) {
	case SubPause, "hold":
		return SubPause
	case SubResume, "unpause", "continue":
		return SubResume
	case SubCancel, "stop", "abort":
		return SubCancel
	case SubList:
		return SubList
	}
	return SubStatus
}
