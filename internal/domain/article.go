package domain

import "time"

// Article is a core entity describing a story fetched from a source.
// Link is the article identity within a run.
type Article struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Link     string `json:"link"`
	Source   string `json:"source,omitempty"`
}

// Source is a configured acquisition endpoint together with the scanner strategy that reads it.
type Source struct {
	Name      string
	URL       string
	Scanner   string
	Selectors Selectors
}

// Selectors overrides the CSS selectors used by HTML scanners.
type Selectors struct {
	Headline string
	Summary  string
	Link     string
}

// Label is an opaque classification result returned by an NLP capability.
type Label string

// ChannelID identifies a distribution destination such as "blog".
type ChannelID string

// AnalysisResult holds the classification output for one article.
type AnalysisResult struct {
	Sentiment Label
	Topics    Label
}

// AdaptedContent maps each selected channel to its formatted content.
type AdaptedContent map[ChannelID]string

// Channels returns the channel keys in no particular order.
func (a AdaptedContent) Channels() []ChannelID {
	ids := make([]ChannelID, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	return ids
}

// RevenueReport is the monetization estimate for one article.
type RevenueReport struct {
	Total       float64
	FailedRules []string
}

// Feedback is handed to the feedback sink once an article reaches the Recorded state.
type Feedback struct {
	RunID      string
	Link       string
	Revenue    float64
	Channels   []ChannelID
	Sentiment  Label
	Topic      Label
	RecordedAt time.Time
}
