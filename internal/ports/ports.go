package ports

import (
	"context"
	"time"

	"ContentPipeline/internal/domain"
)

// ArticleSource pulls articles from one configured upstream endpoint.
type ArticleSource interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.Article, error)
}

// SentimentClassifier labels the polarity of a text.
type SentimentClassifier interface {
	ClassifySentiment(ctx context.Context, text string) (domain.Label, error)
}

// TopicClassifier labels the dominant topic of a text.
type TopicClassifier interface {
	ClassifyTopic(ctx context.Context, text string) (domain.Label, error)
}

// Summarizer condenses a text into a bounded summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Generator produces derivative content from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FeedbackSink accepts the result of a recorded article. Implementations must not block
// the caller and must swallow their own failures.
type FeedbackSink interface {
	Record(ctx context.Context, feedback domain.Feedback)
}

// FeedbackRepository persists feedback records and answers history lookups for deduplication.
type FeedbackRepository interface {
	AlreadyRecorded(ctx context.Context, links []string) (map[string]bool, error)
	SaveFeedback(ctx context.Context, feedback domain.Feedback) error
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Metrics observes pipeline outcomes.
type Metrics interface {
	ObserveOutcome(outcome domain.Outcome)
	ObserveRun(report domain.RunReport)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
