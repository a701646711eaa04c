package platform

import (
	"github.com/mattn/go-runewidth"

	"ContentPipeline/internal/domain"
)

// Built-in channel identifiers.
const (
	Website           domain.ChannelID = "website"
	Blog              domain.ChannelID = "blog"
	SocialMedia       domain.ChannelID = "social-media"
	ContentAggregator domain.ChannelID = "content-aggregator"
)

// SocialMediaWidth caps the social-media body by terminal display width.
const SocialMediaWidth = 280

// Banner returns a formatter that prefixes content with a banner line.
func Banner(banner string) Formatter {
	return func(content string) string {
		return banner + "\n" + content
	}
}

// CappedBanner prefixes content with a banner line and truncates the body to width display cells.
func CappedBanner(banner string, width int) Formatter {
	return func(content string) string {
		if width > 0 {
			content = runewidth.Truncate(content, width, "…")
		}
		return banner + "\n" + content
	}
}

// RegisterDefaults installs the built-in channels.
func RegisterDefaults(r *Registry) error {
	defaults := map[domain.ChannelID]Formatter{
		Website:           Banner("Website Content:"),
		Blog:              Banner("Blog Content:"),
		SocialMedia:       CappedBanner("Social Media Content:", SocialMediaWidth),
		ContentAggregator: Banner("Content Aggregator Content:"),
	}
	for id, formatter := range defaults {
		if err := r.Register(id, formatter); err != nil {
			return err
		}
	}
	return nil
}
