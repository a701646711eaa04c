package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"ContentPipeline/internal/audience"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/feedback"
	"ContentPipeline/internal/ports"
)

// Dedupe policies understood by the pipeline.
const (
	DedupeNone    = "none"
	DedupeRun     = "run"
	DedupeHistory = "history"
)

// Distributor adapts generated content to the selected channels.
type Distributor interface {
	Distribute(content string, signal audience.Signal) (domain.AdaptedContent, error)
}

// Monetizer estimates revenue for adapted content.
type Monetizer interface {
	Total(content domain.AdaptedContent, sentiment domain.Label) domain.RevenueReport
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.ArticleSource
	Sources     []domain.Source
	Sentiment   ports.SentimentClassifier
	Topic       ports.TopicClassifier
	Summarizer  ports.Summarizer
	Generator   ports.Generator
	Distributor Distributor
	Rules       Monetizer
	Sink        ports.FeedbackSink
	Repository  ports.FeedbackRepository
	Notifier    ports.Notifier
	Metrics     ports.Metrics
	Logger      *slog.Logger

	Workers      int
	Dedupe       string
	StageTimeout time.Duration
}

// Pipeline drives every acquired article through analyze, summarize, generate,
// distribute, monetize and record, isolating failures per article.
type Pipeline struct {
	source      ports.ArticleSource
	sources     []domain.Source
	sentiment   ports.SentimentClassifier
	topic       ports.TopicClassifier
	summarizer  ports.Summarizer
	generator   ports.Generator
	distributor Distributor
	rules       Monetizer
	sink        ports.FeedbackSink
	repository  ports.FeedbackRepository
	notifier    ports.Notifier
	metrics     ports.Metrics
	logger      *slog.Logger

	workers      int
	dedupe       string
	stageTimeout time.Duration
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	var missing []string
	if deps.Source == nil {
		missing = append(missing, "source")
	}
	if deps.Sentiment == nil {
		missing = append(missing, "sentiment classifier")
	}
	if deps.Topic == nil {
		missing = append(missing, "topic classifier")
	}
	if deps.Summarizer == nil {
		missing = append(missing, "summarizer")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Distributor == nil {
		missing = append(missing, "distributor")
	}
	if deps.Rules == nil {
		missing = append(missing, "revenue rules")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: pipeline is missing %s", domain.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	dedupe := deps.Dedupe
	switch dedupe {
	case "":
		dedupe = DedupeNone
	case DedupeNone, DedupeRun:
	case DedupeHistory:
		if deps.Repository == nil {
			return nil, fmt.Errorf("%w: history dedupe requires a feedback repository", domain.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown dedupe policy %q", domain.ErrInvalidConfig, dedupe)
	}

	workers := deps.Workers
	if workers < 1 {
		workers = 1
	}

	sink := deps.Sink
	if sink == nil {
		sink = feedback.NopSink{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		source:       deps.Source,
		sources:      append([]domain.Source(nil), deps.Sources...),
		sentiment:    deps.Sentiment,
		topic:        deps.Topic,
		summarizer:   deps.Summarizer,
		generator:    deps.Generator,
		distributor:  deps.Distributor,
		rules:        deps.Rules,
		sink:         sink,
		repository:   deps.Repository,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		logger:       logger.With("component", "pipeline"),
		workers:      workers,
		dedupe:       dedupe,
		stageTimeout: deps.StageTimeout,
		now:          time.Now,
	}, nil
}

// Run executes one pass over every configured source. Article failures never surface as
// an error; the returned error is non-nil only when ctx was cancelled, in which case
// in-flight articles still complete and the rest are counted as cancelled.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{
		RunID:     ulid.Make().String(),
		StartedAt: p.now(),
	}
	log := p.logger.With("run_id", report.RunID)
	log.Info("run started", "sources", len(p.sources), "workers", p.workers, "dedupe", p.dedupe)

	articles := p.acquire(ctx, log, &report)
	articles = p.deduplicate(ctx, log, articles, &report)

	outcomes := make([]domain.Outcome, len(articles))
	started := make([]bool, len(articles))

	// Processing is detached from ctx so that an article, once started, runs to a terminal state.
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, article := range articles {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			outcomes[i] = p.process(work, log, report.RunID, article)
			if p.metrics != nil {
				p.metrics.ObserveOutcome(outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range articles {
		if started[i] {
			report.Outcomes = append(report.Outcomes, outcomes[i])
		} else {
			report.Cancelled++
		}
	}
	report.FinishedAt = p.now()

	if p.metrics != nil {
		p.metrics.ObserveRun(report)
	}

	log.Info("run finished",
		"recorded", report.Recorded(),
		"failed", report.Failed(),
		"skipped", report.Skipped,
		"cancelled", report.Cancelled,
		"sources_failed", report.SourcesFailed,
		"revenue", report.TotalRevenue(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	p.notify(work, log, report)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run %s interrupted: %w", report.RunID, err)
	}
	return report, nil
}

func (p *Pipeline) acquire(ctx context.Context, log *slog.Logger, report *domain.RunReport) []domain.Article {
	var articles []domain.Article
	for _, src := range p.sources {
		if ctx.Err() != nil {
			log.Warn("acquisition stopped", "error", ctx.Err())
			break
		}

		fetched, err := p.source.Fetch(ctx, src)
		if err != nil {
			report.SourcesFailed++
			log.Error("source skipped", "source", src.Name, "url", src.URL, "error", err)
			continue
		}

		report.SourcesScanned++
		log.Debug("source scanned", "source", src.Name, "articles", len(fetched))
		articles = append(articles, fetched...)
	}
	return articles
}

func (p *Pipeline) deduplicate(ctx context.Context, log *slog.Logger, articles []domain.Article, report *domain.RunReport) []domain.Article {
	if p.dedupe == DedupeNone || len(articles) == 0 {
		return articles
	}

	seen := make(map[string]bool, len(articles))
	if p.dedupe == DedupeHistory {
		links := make([]string, 0, len(articles))
		for _, a := range articles {
			links = append(links, a.Link)
		}
		recorded, err := p.repository.AlreadyRecorded(ctx, links)
		if err != nil {
			log.Warn("history lookup failed, deduplicating within run only", "error", err)
		}
		for link, done := range recorded {
			seen[link] = done
		}
	}

	kept := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if seen[a.Link] {
			report.Skipped++
			log.Debug("duplicate skipped", "link", a.Link)
			continue
		}
		seen[a.Link] = true
		kept = append(kept, a)
	}
	return kept
}

// process moves one article through every stage and always returns a terminal outcome.
func (p *Pipeline) process(ctx context.Context, log *slog.Logger, runID string, article domain.Article) (out domain.Outcome) {
	out = domain.Outcome{Article: article, State: domain.StateAcquired}
	stage := domain.StageAnalyze

	defer func() {
		if r := recover(); r != nil {
			p.fail(log, &out, stage, fmt.Errorf("%w: %v", domain.ErrStagePanic, r))
		}
	}()

	fail := func(err error) domain.Outcome {
		p.fail(log, &out, stage, err)
		return out
	}

	sentiment, err := call(ctx, p.stageTimeout, func(ctx context.Context) (domain.Label, error) {
		return p.sentiment.ClassifySentiment(ctx, article.Summary)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: sentiment: %w", domain.ErrAnalysis, err))
	}
	topic, err := call(ctx, p.stageTimeout, func(ctx context.Context) (domain.Label, error) {
		return p.topic.ClassifyTopic(ctx, article.Summary)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: topic: %w", domain.ErrAnalysis, err))
	}
	out.Analysis = domain.AnalysisResult{Sentiment: sentiment, Topics: topic}
	out.State = domain.StateAnalyzed

	stage = domain.StageSummarize
	summary, err := call(ctx, p.stageTimeout, func(ctx context.Context) (string, error) {
		return p.summarizer.Summarize(ctx, article.Summary)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrAnalysis, err))
	}
	out.Summary = summary
	out.State = domain.StateSummarized

	stage = domain.StageGenerate
	content, err := call(ctx, p.stageTimeout, func(ctx context.Context) (string, error) {
		return p.generator.Generate(ctx, Prompt(topic, summary))
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrAnalysis, err))
	}
	out.Content = content
	out.State = domain.StateGenerated

	stage = domain.StageDistribute
	adapted, err := p.distributor.Distribute(content, audience.Signal{Text: article.Summary})
	if err != nil {
		return fail(err)
	}
	out.Adapted = adapted
	out.State = domain.StateDistributed

	stage = domain.StageMonetize
	out.Revenue = p.rules.Total(adapted, sentiment)
	if len(out.Revenue.FailedRules) > 0 {
		log.Warn("revenue rules counted as zero",
			"link", article.Link,
			"stage", string(stage),
			"rules", strings.Join(out.Revenue.FailedRules, ","),
			"error", domain.ErrRuleEstimation,
		)
	}
	out.State = domain.StateMonetized

	stage = domain.StageRecord
	channels := adapted.Channels()
	p.sink.Record(ctx, domain.Feedback{
		RunID:      runID,
		Link:       article.Link,
		Revenue:    out.Revenue.Total,
		Channels:   channels,
		Sentiment:  sentiment,
		Topic:      topic,
		RecordedAt: p.now(),
	})
	out.State = domain.StateRecorded

	log.Debug("article recorded", "link", article.Link, "revenue", out.Revenue.Total, "channels", len(channels))
	return out
}

func (p *Pipeline) fail(log *slog.Logger, out *domain.Outcome, stage domain.Stage, err error) {
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) {
		err = &domain.StageError{Stage: stage, Link: out.Article.Link, Err: err}
	}
	out.State = domain.StateFailed
	out.FailedStage = stage
	out.Err = err
	log.Warn("article failed", "link", out.Article.Link, "stage", string(stage), "error", err)
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, report domain.RunReport) {
	if p.notifier == nil {
		return
	}
	digest := BuildDigest(report)
	if digest == "" {
		return
	}
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		log.Warn("publish digest failed", "error", err)
	}
}

// call bounds a single collaborator invocation by timeout when it is positive.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// Prompt builds the generation prompt from the topic label and the article summary.
func Prompt(topic domain.Label, summary string) string {
	if topic == "" {
		return summary
	}
	return fmt.Sprintf("Topic: %s\n\n%s", topic, summary)
}
