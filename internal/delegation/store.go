package delegation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Specialists []Specialist `yaml:"specialists"`
}

// FileStore keeps specialists in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. A missing file loads as empty.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(_ context.Context) ([]Specialist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return ff.Specialists, nil
}

// Save writes atomically through a temp file.
func (f *FileStore) Save(_ context.Context, list []Specialist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := yaml.Marshal(fileFormat{Specialists: list})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Sender is the part of the transport the channel forwarder needs.
type Sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) (string, error)
}

// ChannelForwarder posts the hand-off into the specialist's channel.
type ChannelForwarder struct {
	sender Sender
}

// NewChannelForwarder creates a forwarder over the gateway.
func NewChannelForwarder(s Sender) *ChannelForwarder {
	return &ChannelForwarder{sender: s}
}

func (c *ChannelForwarder) Name() string { return "channel" }

func (c *ChannelForwarder) Forward(ctx context.Context, to Specialist, h Handoff) error {
	who := h.UserName
	if who == "" {
		who = h.UserID
	}
	_, err := c.sender.Send(ctx, &gateway.OutboundMessage{
		Platform:  to.Platform,
		ChannelID: to.ChannelID,
		Content:   fmt.Sprintf("Request from %s (%s): %s", who, h.UserID, h.Utterance),
	})
	return err
}
