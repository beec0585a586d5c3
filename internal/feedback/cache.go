package feedback

import (
	"sync"
	"time"
)

// DefaultCapacity is how many recent exchanges stay resolvable.
const DefaultCapacity = 20

// Exchange is one tracked request and the reply it got.
type Exchange struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Input     string    `json:"input"`
	Response  string    `json:"response"`
	At        time.Time `json:"at"`
}

// Cache is a bounded FIFO of exchanges keyed by the request message ID.
// Reply message IDs can be registered as aliases; aliases do not count
// toward capacity and disappear with their entry.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	order     []string
	entries   map[string]*Exchange
	aliases   map[string]string   // alias -> key
	aliasesOf map[string][]string // key -> aliases
}

// NewCache creates a cache. A non-positive capacity uses DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity:  capacity,
		entries:   make(map[string]*Exchange),
		aliases:   make(map[string]string),
		aliasesOf: make(map[string][]string),
	}
}

// Track records an incoming message with an empty response. Tracking an ID
// twice keeps its original position.
func (c *Cache) Track(messageID, userID, input string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[messageID]; ok {
		e.Input = input
		return
	}
	c.entries[messageID] = &Exchange{MessageID: messageID, UserID: userID, Input: input, At: at}
	c.order = append(c.order, messageID)
	for len(c.order) > c.capacity {
		c.evictLocked(c.order[0])
		c.order = c.order[1:]
	}
}

func (c *Cache) evictLocked(key string) {
	delete(c.entries, key)
	for _, a := range c.aliasesOf[key] {
		delete(c.aliases, a)
	}
	delete(c.aliasesOf, key)
}

// Respond fills in the response of a tracked message.
func (c *Cache) Respond(messageID, response string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[c.resolveLocked(messageID)]
	if !ok {
		return false
	}
	e.Response = response
	return true
}

// Alias makes alias resolve to the entry for messageID.
func (c *Cache) Alias(alias, messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[messageID]; !ok || alias == "" || alias == messageID {
		return false
	}
	c.aliases[alias] = messageID
	c.aliasesOf[messageID] = append(c.aliasesOf[messageID], alias)
	return true
}

// Lookup resolves a message ID or alias.
func (c *Cache) Lookup(id string) (Exchange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[c.resolveLocked(id)]
	if !ok {
		return Exchange{}, false
	}
	return *e, true
}

// LatestAnswered returns the user's most recent exchange that has a
// response, ignoring except.
func (c *Cache) LatestAnswered(userID, except string) (Exchange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.order) - 1; i >= 0; i-- {
		e := c.entries[c.order[i]]
		if e.UserID == userID && e.MessageID != except && e.Response != "" {
			return *e, true
		}
	}
	return Exchange{}, false
}

// Len returns the number of entries, not counting aliases.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) resolveLocked(id string) string {
	if key, ok := c.aliases[id]; ok {
		return key
	}
	return id
}
