package delegation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists the specialist list.
type Store interface {
	Load(ctx context.Context) ([]Specialist, error)
	Save(ctx context.Context, specialists []Specialist) error
}

// Registry holds the known specialists, keyed by lowercase name.
type Registry struct {
	mu          sync.RWMutex
	specialists map[string]*Specialist
	store       Store
	platform    string
	now         func() time.Time
	logger      *zap.Logger
}

// NewRegistry creates an empty registry backed by store. store may be nil.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		specialists: make(map[string]*Specialist),
		store:       store,
		now:         time.Now,
		logger:      logger,
	}
}

// SetDefaultPlatform sets the platform assumed for specialists that name none.
func (r *Registry) SetDefaultPlatform(p string) { r.platform = p }

// Load replaces the registry contents with what the store holds.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	list, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load specialists: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specialists = make(map[string]*Specialist, len(list))
	for _, s := range list {
		s := s.clone()
		s.Specialties = DeriveSpecialties(s.Purpose, s.Capabilities)
		if s.Platform == "" {
			s.Platform = r.platform
		}
		r.specialists[key(s.Name)] = &s
	}
	r.logger.Info("specialists loaded", zap.Int("count", len(list)))
	return nil
}

// Register adds or replaces a specialist and persists the registry.
func (r *Registry) Register(ctx context.Context, s Specialist) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" || strings.TrimSpace(s.ChannelID) == "" {
		return fmt.Errorf("%w: name and channel are required", ErrValidation)
	}
	s = s.clone()
	s.Specialties = DeriveSpecialties(s.Purpose, s.Capabilities)
	if s.Platform == "" {
		s.Platform = r.platform
	}
	if s.LastSeen.IsZero() {
		s.LastSeen = r.now()
	}

	r.mu.Lock()
	r.specialists[key(s.Name)] = &s
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("specialist registered", zap.String("name", s.Name), zap.Strings("specialties", s.Specialties))
	return r.persist(ctx, snapshot)
}

// Remove deletes a specialist.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	if _, ok := r.specialists[key(name)]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveSpecialist, name)
	}
	delete(r.specialists, key(name))
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.logger.Info("specialist removed", zap.String("name", name))
	return r.persist(ctx, snapshot)
}

// SetOnline marks a specialist online or offline.
func (r *Registry) SetOnline(ctx context.Context, name string, online bool) error {
	r.mu.Lock()
	s, ok := r.specialists[key(name)]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveSpecialist, name)
	}
	s.IsOnline = online
	if online {
		s.LastSeen = r.now()
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	return r.persist(ctx, snapshot)
}

// Touch records that the specialist was just used.
func (r *Registry) Touch(ctx context.Context, name string) {
	r.mu.Lock()
	s, ok := r.specialists[key(name)]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.LastSeen = r.now()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := r.persist(ctx, snapshot); err != nil {
		r.logger.Warn("persist specialist last-seen failed", zap.String("name", name), zap.Error(err))
	}
}

// Get looks a specialist up by name, case-insensitively.
func (r *Registry) Get(name string) (Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specialists[key(name)]
	if !ok {
		return Specialist{}, false
	}
	return s.clone(), true
}

// List returns every specialist sorted by name.
func (r *Registry) List() []Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Online returns the online specialists sorted by name.
func (r *Registry) Online() []Specialist {
	var out []Specialist
	for _, s := range r.List() {
		if s.IsOnline {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of registered specialists.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specialists)
}

func (r *Registry) snapshotLocked() []Specialist {
	out := make([]Specialist, 0, len(r.specialists))
	for _, s := range r.specialists {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].Name) < key(out[j].Name) })
	return out
}

func (r *Registry) persist(ctx context.Context, list []Specialist) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, list); err != nil {
		return fmt.Errorf("save specialists: %w", err)
	}
	return nil
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
