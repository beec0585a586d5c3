package delegation

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoActiveSpecialist means the chosen specialist is unknown or offline.
	ErrNoActiveSpecialist = errors.New("no active specialist")
	// ErrValidation rejects malformed registrations.
	ErrValidation = errors.New("invalid specialist")
)

// Specialist is an external responder requests can be handed to.
type Specialist struct {
	Name         string    `json:"name" yaml:"name"`
	Purpose      string    `json:"purpose" yaml:"purpose"`
	Capabilities []string  `json:"capabilities" yaml:"capabilities"`
	Specialties  []string  `json:"specialties" yaml:"-"`
	Platform     string    `json:"platform" yaml:"platform"`
	ChannelID    string    `json:"channelId" yaml:"channel_id"`
	IsOnline     bool      `json:"isOnline" yaml:"online"`
	LastSeen     time.Time `json:"lastSeen" yaml:"last_seen,omitempty"`
}

func (s Specialist) clone() Specialist {
	s.Capabilities = append([]string(nil), s.Capabilities...)
	s.Specialties = append([]string(nil), s.Specialties...)
	return s
}

// DeriveSpecialties builds the matchable specialty list from capabilities
// and the purpose statement: lowercased, trimmed, deduplicated, in order.
func DeriveSpecialties(purpose string, capabilities []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, c := range capabilities {
		add(c)
	}
	for _, part := range strings.FieldsFunc(purpose, func(r rune) bool {
		return r == ',' || r == ';' || r == '.'
	}) {
		for _, p := range strings.Split(part, " and ") {
			add(p)
		}
	}
	return out
}

// matchScore counts specialties whose every word appears in the utterance.
func matchScore(s Specialist, utterance string) int {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(utterance), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}
	score := 0
	for _, sp := range s.Specialties {
		parts := strings.Fields(sp)
		if len(parts) == 0 {
			continue
		}
		all := true
		for _, p := range parts {
			if !words[p] {
				all = false
				break
			}
		}
		if all {
			score++
		}
	}
	return score
}
