package platform

import (
	"fmt"
	"sort"
	"sync"

	"ContentPipeline/internal/domain"
)

// Formatter adapts generic content for a single distribution channel.
type Formatter func(content string) string

// Registry keeps a mapping from channel identifiers to their formatters.
// It is safe for concurrent use; registration may happen while a run is in progress.
type Registry struct {
	mu         sync.RWMutex
	formatters map[domain.ChannelID]Formatter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: map[domain.ChannelID]Formatter{}}
}

// Register adds or replaces the formatter for a channel.
func (r *Registry) Register(id domain.ChannelID, formatter Formatter) error {
	if id == "" {
		return fmt.Errorf("register channel: empty channel id")
	}
	if formatter == nil {
		return fmt.Errorf("register channel %s: nil formatter", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.formatters == nil {
		r.formatters = map[domain.ChannelID]Formatter{}
	}
	r.formatters[id] = formatter
	return nil
}

// Format applies the channel formatter or fails with domain.ErrUnknownChannel.
func (r *Registry) Format(id domain.ChannelID, content string) (string, error) {
	r.mu.RLock()
	formatter, ok := r.formatters[id]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownChannel, id)
	}
	return formatter(content), nil
}

// Has reports whether a channel is registered.
func (r *Registry) Has(id domain.ChannelID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.formatters[id]
	return ok
}

// Channels lists registered channels in lexical order.
func (r *Registry) Channels() []domain.ChannelID {
	r.mu.RLock()
	ids := make([]domain.ChannelID, 0, len(r.formatters))
	for id := range r.formatters {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
