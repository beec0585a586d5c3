// Package conversation holds per-user conversation state. Each user's context
// is owned by whoever holds its lock, so one user's turns are processed in
// order while different users proceed in parallel.
package conversation

import (
	"sync"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/intent"
	"go.uber.org/zap"
)

// Exchange is one clarifying question and the answer it got.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Turn is one line of conversation history.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Context is the state kept for one user.
type Context struct {
	UserID string `json:"user_id"`

	PendingIntent       *intent.Scored `json:"pending_intent,omitempty"`
	Gathering           bool           `json:"gathering"`
	OutstandingQuestion string         `json:"outstanding_question,omitempty"`
	GenericAsked        bool           `json:"generic_asked,omitempty"`
	Exchanges           []Exchange     `json:"exchanges,omitempty"`
	ClarifiedRequest    string         `json:"clarified_request,omitempty"`

	LastWorkItem    string    `json:"last_work_item,omitempty"`
	RecentWorkItems []string  `json:"recent_work_items,omitempty"`
	History         []Turn    `json:"history,omitempty"`
	LastSeen        time.Time `json:"last_seen"`

	maxHistory int
	maxRecent  int
}

// AddTurn appends to history, dropping the oldest turns past the bound.
func (c *Context) AddTurn(role, text string, at time.Time) {
	c.History = append(c.History, Turn{Role: role, Text: text, At: at})
	if c.maxHistory > 0 && len(c.History) > c.maxHistory {
		c.History = append([]Turn(nil), c.History[len(c.History)-c.maxHistory:]...)
	}
}

// RememberWorkItem makes id the last work item and moves it to the front of
// the recent list.
func (c *Context) RememberWorkItem(id string) {
	c.LastWorkItem = id
	recent := []string{id}
	for _, r := range c.RecentWorkItems {
		if r != id {
			recent = append(recent, r)
		}
	}
	if c.maxRecent > 0 && len(recent) > c.maxRecent {
		recent = recent[:c.maxRecent]
	}
	c.RecentWorkItems = recent
}

// ResetClarification leaves the gathering state.
func (c *Context) ResetClarification() {
	c.PendingIntent = nil
	c.Gathering = false
	c.OutstandingQuestion = ""
	c.GenericAsked = false
	c.Exchanges = nil
}

// Hints returns what a classifier may see of this context.
func (c *Context) Hints() intent.Hints {
	h := intent.Hints{LastWorkItem: c.LastWorkItem}
	for _, t := range c.History {
		h.History = append(h.History, t.Role+": "+t.Text)
	}
	return h
}

func (c *Context) clone() Context {
	out := *c
	out.Exchanges = append([]Exchange(nil), c.Exchanges...)
	out.RecentWorkItems = append([]string(nil), c.RecentWorkItems...)
	out.History = append([]Turn(nil), c.History...)
	if c.PendingIntent != nil {
		p := *c.PendingIntent
		out.PendingIntent = &p
	}
	return out
}

// Options bound the store.
type Options struct {
	TTL          time.Duration
	HistoryTurns int
	RecentItems  int
}

type entry struct {
	mu   sync.Mutex
	refs int
	ctx  Context
}

// Store owns every user's context.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	opts      Options
	lastSweep time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// sweepInterval limits how often Acquire scans for idle contexts.
const sweepInterval = time.Minute

// NewStore creates an empty context store.
func NewStore(opts Options, logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[string]*entry),
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// Acquire locks the user's context, creating it on first use, and returns it
// with a release function. The context must not be used after release.
func (s *Store) Acquire(userID string) (*Context, func()) {
	s.mu.Lock()
	if now := s.now(); now.Sub(s.lastSweep) >= sweepInterval {
		s.lastSweep = now
		s.sweepLocked()
	}
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{ctx: Context{
			UserID:     userID,
			maxHistory: s.opts.HistoryTurns,
			maxRecent:  s.opts.RecentItems,
		}}
		s.entries[userID] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	e.ctx.LastSeen = s.now()
	var once sync.Once
	return &e.ctx, func() {
		once.Do(func() {
			e.ctx.LastSeen = s.now()
			e.mu.Unlock()
			s.mu.Lock()
			e.refs--
			s.mu.Unlock()
		})
	}
}

// View returns a copy of the user's context without creating one.
func (s *Store) View(userID string) (Context, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	if ok {
		e.refs++
	}
	s.mu.Unlock()
	if !ok {
		return Context{}, false
	}

	e.mu.Lock()
	out := e.ctx.clone()
	e.mu.Unlock()

	s.mu.Lock()
	e.refs--
	s.mu.Unlock()
	return out, true
}

// Len returns the number of live contexts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts contexts idle longer than the TTL and returns how many went.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// sweepLocked skips contexts that someone holds or is waiting for.
func (s *Store) sweepLocked() int {
	if s.opts.TTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.opts.TTL)
	evicted := 0
	for id, e := range s.entries {
		if e.refs > 0 {
			continue
		}
		// refs == 0 means nobody holds e.mu, so LastSeen is stable.
		if e.ctx.LastSeen.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle conversation contexts", zap.Int("count", evicted))
	}
	return evicted
}
