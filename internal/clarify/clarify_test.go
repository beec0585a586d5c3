package clarify

import (
	"context"
	"errors"
	"testing"

	"github.com/lebron1212/aos-dev-team-sub000/internal/conversation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"github.com/lebron1212/aos-dev-team-sub000/internal/oracle"
	"go.uber.org/zap"
)

// scripted replies in order, then fails.
func scripted(replies ...string) oracle.Oracle {
	i := 0
	return oracle.Func(func(context.Context, oracle.Prompt) (string, error) {
		if i >= len(replies) {
			return "", oracle.ErrUnavailable
		}
		i++
		return replies[i-1], nil
	})
}

func buildIntent(desc string, c intent.Complexity) intent.Scored {
	return intent.Scored{Intent: intent.Intent{
		Category:            intent.Build,
		Parameters:          intent.Parameters{Description: desc},
		EstimatedComplexity: c,
	}}
}

func TestSimpleWithNoMissingInfoProceeds(t *testing.T) {
	c := New(scripted(`{"proceed":true,"clarifiedRequest":"contact form with name, email, message"}`), 3, zap.NewNop())
	r := c.Evaluate(context.Background(), Request{Description: "build a contact form", Complexity: intent.Simple})
	if !r.ShouldProceed || r.NextQuestion != "" {
		t.Fatalf("got %+v", r)
	}
	if r.ClarifiedRequest != "contact form with name, email, message" {
		t.Errorf("clarified = %q", r.ClarifiedRequest)
	}
}

func TestFallbackPolicy(t *testing.T) {
	c := New(oracle.Unavailable, 3, zap.NewNop())

	r := c.Evaluate(context.Background(), Request{Description: "contact form", Complexity: intent.Simple})
	if !r.ShouldProceed {
		t.Errorf("simple request should proceed without the oracle: %+v", r)
	}

	r = c.Evaluate(context.Background(), Request{Description: "billing portal", Complexity: intent.Complex})
	if r.ShouldProceed || r.NextQuestion != GenericQuestion {
		t.Errorf("complex request should get the generic question: %+v", r)
	}

	r = c.Evaluate(context.Background(), Request{
		Description: "billing portal",
		Complexity:  intent.Complex,
		Exchanges:   []conversation.Exchange{{Question: GenericQuestion, Answer: "monthly invoices"}},
	})
	if !r.ShouldProceed {
		t.Errorf("generic question must not be asked twice: %+v", r)
	}
	if r.ClarifiedRequest != "billing portal (details: monthly invoices)" {
		t.Errorf("clarified = %q", r.ClarifiedRequest)
	}
}

func TestStyleQuestionsAreNeverAsked(t *testing.T) {
	c := New(scripted(`{"proceed":false,"question":"What color scheme would you like?"}`), 3, zap.NewNop())
	r := c.Evaluate(context.Background(), Request{Description: "landing page", Complexity: intent.Medium})
	if !r.ShouldProceed {
		t.Fatalf("style question leaked: %+v", r)
	}
}

func TestIsStyleQuestion(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"What color scheme would you like?", true},
		{"Any preferred fonts?", true},
		{"Should it support dark mode?", true},
		{"Which programming language should we use?", true},
		{"Do you want React or Vue?", true},
		{"Which languages must the site support?", false},
		{"Should uploads go into the photo library?", false},
		{"Is this for a lifestyle blog or a store?", false},
		{"Who should receive the form submissions?", false},
	}
	for _, tt := range tests {
		if got := IsStyleQuestion(tt.q); got != tt.want {
			t.Errorf("IsStyleQuestion(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestContentQuestionIsAsked(t *testing.T) {
	c := New(scripted(`{"proceed":false,"question":"Which languages must the site support?"}`), 3, zap.NewNop())
	r := c.Evaluate(context.Background(), Request{Description: "marketing site", Complexity: intent.Medium})
	if r.ShouldProceed || r.NextQuestion != "Which languages must the site support?" {
		t.Fatalf("content question suppressed: %+v", r)
	}
}

func TestMalformedVerdictFallsBack(t *testing.T) {
	c := New(scripted(`{"proceed":false}`), 3, zap.NewNop())
	r := c.Evaluate(context.Background(), Request{Description: "x", Complexity: intent.Medium})
	if r.NextQuestion != GenericQuestion {
		t.Fatalf("got %+v", r)
	}
}

func TestRoundCapForcesProceed(t *testing.T) {
	c := New(scripted(`{"proceed":false,"question":"who are the users?"}`), 1, zap.NewNop())
	r := c.Evaluate(context.Background(), Request{
		Description: "portal",
		Complexity:  intent.Complex,
		Exchanges:   []conversation.Exchange{{Question: "q", Answer: "a"}},
	})
	if !r.ShouldProceed {
		t.Fatalf("got %+v", r)
	}
}

func TestDialogKeepsOneOutstandingQuestion(t *testing.T) {
	c := New(scripted(
		`{"proceed":false,"question":"Who will use the portal?"}`,
		`{"proceed":true,"clarifiedRequest":"customer billing portal","requirements":["customers log in","view invoices"]}`,
	), 3, zap.NewNop())
	cc := &conversation.Context{UserID: "u1"}

	out := c.Begin(context.Background(), cc, buildIntent("billing portal", intent.Complex))
	if out.ShouldProceed || !cc.Gathering || cc.OutstandingQuestion != "Who will use the portal?" {
		t.Fatalf("after Begin: %+v, ctx %+v", out, cc)
	}

	out, err := c.Answer(context.Background(), cc, "our customers")
	if err != nil {
		t.Fatal(err)
	}
	if !out.ShouldProceed || cc.Gathering || cc.OutstandingQuestion != "" {
		t.Fatalf("after Answer: %+v, ctx %+v", out, cc)
	}
	if out.Intent.Parameters.Description != "billing portal" || len(out.Requirements) != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if cc.ClarifiedRequest != "customer billing portal" {
		t.Errorf("clarified = %q", cc.ClarifiedRequest)
	}
}

func TestAnswerWithoutQuestion(t *testing.T) {
	c := New(oracle.Unavailable, 3, zap.NewNop())
	_, err := c.Answer(context.Background(), &conversation.Context{}, "hello")
	if !errors.Is(err, ErrNotGathering) {
		t.Fatalf("got %v", err)
	}
}
