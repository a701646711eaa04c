// Package distribution adapts generated content for the channels an audience prefers.
package distribution

import (
	"fmt"
	"sort"

	"ContentPipeline/internal/audience"
	"ContentPipeline/internal/domain"
)

// Formatter formats content for a registered channel.
type Formatter interface {
	Format(id domain.ChannelID, content string) (string, error)
	Has(id domain.ChannelID) bool
}

// Distributor intersects configured channels with preferred channels and formats content for each.
type Distributor struct {
	registry   Formatter
	configured map[domain.ChannelID]struct{}
	resolver   audience.Resolver
}

// New validates that every configured channel is registered and returns a Distributor.
// A nil resolver falls back to audience.Default.
func New(registry Formatter, configured []domain.ChannelID, resolver audience.Resolver) (*Distributor, error) {
	if registry == nil {
		return nil, fmt.Errorf("distributor: platform registry is not configured")
	}
	if resolver == nil {
		resolver = audience.Default()
	}

	set := make(map[domain.ChannelID]struct{}, len(configured))
	for _, id := range configured {
		if !registry.Has(id) {
			return nil, fmt.Errorf("distributor: configured channel: %w: %s", domain.ErrUnknownChannel, id)
		}
		set[id] = struct{}{}
	}

	return &Distributor{registry: registry, configured: set, resolver: resolver}, nil
}

// Distribute returns formatted content keyed by exactly the configured ∩ preferred channels.
// An empty intersection yields an empty mapping.
func (d *Distributor) Distribute(content string, signal audience.Signal) (domain.AdaptedContent, error) {
	selected := d.Select(signal)
	adapted := make(domain.AdaptedContent, len(selected))
	for _, id := range selected {
		formatted, err := d.registry.Format(id, content)
		if err != nil {
			return nil, fmt.Errorf("format %s: %w", id, err)
		}
		adapted[id] = formatted
	}
	return adapted, nil
}

// Select resolves the signal and intersects it with the configured channels, sorted lexically.
func (d *Distributor) Select(signal audience.Signal) []domain.ChannelID {
	preferred := d.resolver.Resolve(signal)

	selected := make([]domain.ChannelID, 0, len(preferred))
	seen := make(map[domain.ChannelID]struct{}, len(preferred))
	for _, id := range preferred {
		if _, ok := d.configured[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		selected = append(selected, id)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i] < selected[j] })
	return selected
}
