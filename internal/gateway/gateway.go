package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages all platform adapters and routes messages.
type Gateway struct {
	adapters  map[string]GatewayAdapter
	handler   MessageHandler
	reactions ReactionHandler
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]GatewayAdapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound messages.
func (g *Gateway) SetHandler(h MessageHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// SetReactionHandler sets the callback for all inbound reactions.
func (g *Gateway) SetReactionHandler(h ReactionHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = h
}

// Register adds an adapter and wires its handlers.
func (g *Gateway) Register(adapter GatewayAdapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(func(msg *InboundMessage) {
		g.mu.RLock()
		h := g.handler
		g.mu.RUnlock()
		if h != nil {
			h(msg)
		}
	})
	adapter.OnReaction(func(evt *ReactionEvent) {
		g.mu.RLock()
		h := g.reactions
		g.mu.RUnlock()
		if h != nil {
			h(evt)
		}
	})
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts all registered adapters. A failing adapter is logged and
// skipped; the joined error reports every failure.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var failed []string
	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			failed = append(failed, platform)
			continue
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("%w: connect failed for %v", ErrTransport, failed)
	}
	return nil
}

func (g *Gateway) adapter(platform string) (GatewayAdapter, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for platform %q", ErrTransport, platform)
	}
	return a, nil
}

// Send sends a message to a specific platform channel and returns the
// platform message ID.
func (g *Gateway) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	a, err := g.adapter(msg.Platform)
	if err != nil {
		return "", err
	}
	id, err := a.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return id, nil
}

// CreateThread opens a thread under parent and returns its ID.
func (g *Gateway) CreateThread(ctx context.Context, parent MessageRef, title string) (string, error) {
	a, err := g.adapter(parent.Platform)
	if err != nil {
		return "", err
	}
	id, err := a.CreateThread(ctx, parent, title)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return id, nil
}

// PostToThread posts text into an existing thread.
func (g *Gateway) PostToThread(ctx context.Context, thread ThreadRef, text string) error {
	a, err := g.adapter(thread.Platform)
	if err != nil {
		return err
	}
	if err := a.PostToThread(ctx, thread, text); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the registered platform names, sorted.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

// StatusAll reports connection state for adapters that track it.
func (g *Gateway) StatusAll() []AdapterStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []AdapterStatus
	for p, a := range g.adapters {
		if s, ok := a.(interface{ Status() AdapterStatus }); ok {
			out = append(out, s.Status())
			continue
		}
		out = append(out, AdapterStatus{Platform: p, Connected: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
