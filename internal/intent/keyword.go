package intent

import (
	"context"
	"regexp"
	"strings"
)

type indicator struct {
	term   string
	weight float64
}

// indicators are matched as whole words or phrases against the normalized utterance.
var indicators = map[Category][]indicator{
	Build: {
		{"build", 0.6}, {"create", 0.5}, {"implement", 0.5}, {"develop", 0.5},
		{"make", 0.4}, {"generate", 0.4}, {"set up", 0.4}, {"scaffold", 0.5},
		{"website", 0.3}, {"app", 0.2}, {"page", 0.2}, {"form", 0.2},
		{"api", 0.2}, {"bot", 0.2}, {"new", 0.2},
	},
	Modify: {
		{"modify", 0.6}, {"change", 0.5}, {"update", 0.5}, {"edit", 0.5},
		{"fix", 0.5}, {"tweak", 0.4}, {"rename", 0.4}, {"refactor", 0.5},
		{"add", 0.3}, {"remove", 0.3}, {"instead", 0.2},
	},
	Analyze: {
		{"analyze", 0.6}, {"analyse", 0.6}, {"investigate", 0.5}, {"audit", 0.5},
		{"review", 0.5}, {"compare", 0.4}, {"report", 0.3}, {"metrics", 0.3},
		{"performance", 0.3}, {"cost", 0.3}, {"usage", 0.2},
	},
	Manage: {
		{"pause", 0.7}, {"resume", 0.7}, {"cancel", 0.7}, {"abort", 0.6},
		{"stop", 0.5}, {"status", 0.5}, {"progress", 0.4}, {"continue", 0.4},
		{"unpause", 0.7}, {"list", 0.3}, {"work items", 0.3},
	},
	Question: {
		{"explain", 0.5}, {"why", 0.4}, {"what", 0.3}, {"how", 0.3},
		{"when", 0.3}, {"where", 0.3}, {"who", 0.3}, {"is there", 0.3},
		{"can you", 0.2}, {"?", 0.3},
	},
	Conversation: {
		{"thanks", 0.6}, {"thank you", 0.6}, {"hello", 0.5}, {"hi", 0.5},
		{"hey", 0.5}, {"good morning", 0.5}, {"bye", 0.5}, {"ok", 0.3},
		{"cool", 0.3}, {"nice", 0.3},
	},
}

var (
	workItemRef  = regexp.MustCompile(`\bwi-[0-9a-f]{8}\b`)
	nonWordChars = regexp.MustCompile(`[^a-z0-9?\- ]+`)
)

// KeywordClassifier is the deterministic scorer. Each category sums the
// weights of the indicator terms present; the highest score wins with ties
// broken by Priority. Confidence is the winning score capped at 1.
type KeywordClassifier struct{}

func (KeywordClassifier) Name() string { return "keyword" }

func (KeywordClassifier) Classify(_ context.Context, utterance string, hints Hints) (Scored, error) {
	text := normalize(utterance)

	var (
		best      Category
		bestScore float64
	)
	for _, c := range Priority {
		score := 0.0
		for _, ind := range indicators[c] {
			if contains(text, ind.term) {
				score += ind.weight
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore == 0 {
		return Unrecognized(utterance), nil
	}

	in := Intent{
		Category:            best,
		Subcategory:         subcategory(best, text),
		Parameters:          Parameters{Description: strings.TrimSpace(utterance)},
		EstimatedComplexity: estimateComplexity(text),
	}
	in.Parameters.Target = workItemRef.FindString(strings.ToLower(utterance))
	in.RequiredAgents = agentsFor(in.Category, in.Subcategory)

	conf := bestScore
	if conf > 1 {
		conf = 1
	}
	return Scored{Intent: in, Confidence: conf, Source: "keyword"}, nil
}

// normalize lowercases, turns punctuation into spaces and pads with spaces
// so phrase lookups can match on word boundaries. A question mark survives
// as its own token.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "?", " ? ")
	s = nonWordChars.ReplaceAllString(s, " ")
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

func contains(text, term string) bool {
	return strings.Contains(text, " "+term+" ")
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if contains(text, t) {
			return true
		}
	}
	return false
}

func subcategory(c Category, text string) string {
	switch c {
	case Build:
		switch {
		case containsAny(text, "api", "endpoint", "service"):
			return "api"
		case containsAny(text, "bot"):
			return "bot"
		case containsAny(text, "form", "page", "website", "ui", "dashboard", "landing"):
			return "frontend"
		}
		return "general"
	case Modify:
		if containsAny(text, "fix", "bug", "broken") {
			return "bugfix"
		}
		return "enhancement"
	case Analyze:
		switch {
		case containsAny(text, "cost", "spend", "billing"):
			return "cost"
		case containsAny(text, "performance", "latency", "slow"):
			return "performance"
		}
		return "general"
	case Manage:
		switch {
		case containsAny(text, "unpause", "resume", "continue"):
			return SubResume
		case containsAny(text, "pause", "hold"):
			return SubPause
		case containsAny(text, "cancel", "abort", "stop"):
			return SubCancel
		case containsAny(text, "list", "work items"):
			return SubList
		}
		return SubStatus
	case Question:
		return "general"
	}
	if containsAny(text, "thanks", "thank you") {
		return "thanks"
	}
	if containsAny(text, "hello", "hi", "hey", "good morning") {
		return "greeting"
	}
	return "chat"
}

func estimateComplexity(text string) Complexity {
	words := len(strings.Fields(text))
	switch {
	case containsAny(text, "enterprise", "microservices", "multi-tenant", "multi tenant", "sso"):
		return Enterprise
	case containsAny(text, "authentication", "auth", "database", "payment", "payments", "integration", "real-time", "realtime"),
		words > 25:
		return Complex
	case words > 12, strings.Count(text, " and ")+strings.Count(text, " with ") >= 2:
		return Medium
	}
	return Simple
}

func agentsFor(c Category, sub string) []string {
	switch c {
	case Build:
		switch sub {
		case "frontend":
			return []string{"frontend", "reviewer"}
		case "api":
			return []string{"backend", "reviewer"}
		}
		return []string{"builder", "reviewer"}
	case Modify:
		return []string{"builder"}
	case Analyze:
		return []string{"analyst"}
	}
	return nil
}
