// Package audience derives preferred distribution channels from an audience signal.
package audience

import (
	"sort"

	"ContentPipeline/internal/domain"
)

// Signal is the raw audience input handed to a Resolver. Resolvers may ignore any part of it.
type Signal struct {
	Text       string
	Engagement map[domain.ChannelID]float64
}

// Resolver maps a signal to a set of preferred channels. Implementations must be pure.
type Resolver interface {
	Resolve(signal Signal) []domain.ChannelID
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(signal Signal) []domain.ChannelID

// Resolve calls f(signal).
func (f ResolverFunc) Resolve(signal Signal) []domain.ChannelID {
	return f(signal)
}

// DefaultPreferred is returned by Default regardless of the signal.
var DefaultPreferred = []domain.ChannelID{"blog", "social-media"}

// Fixed returns a resolver that ignores its input and always prefers the given channels.
func Fixed(channels ...domain.ChannelID) Resolver {
	set := normalize(channels)
	return ResolverFunc(func(Signal) []domain.ChannelID {
		out := make([]domain.ChannelID, len(set))
		copy(out, set)
		return out
	})
}

// Default is the placeholder strategy: a fixed {blog, social-media} preference.
func Default() Resolver {
	return Fixed(DefaultPreferred...)
}

// Engagement prefers every channel whose engagement score reaches threshold.
// When no channel qualifies it defers to fallback.
func Engagement(threshold float64, fallback Resolver) Resolver {
	return ResolverFunc(func(signal Signal) []domain.ChannelID {
		var picked []domain.ChannelID
		for id, score := range signal.Engagement {
			if score >= threshold {
				picked = append(picked, id)
			}
		}
		if len(picked) == 0 && fallback != nil {
			return fallback.Resolve(signal)
		}
		return normalize(picked)
	})
}

func normalize(channels []domain.ChannelID) []domain.ChannelID {
	seen := make(map[domain.ChannelID]struct{}, len(channels))
	out := make([]domain.ChannelID, 0, len(channels))
	for _, id := range channels {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
