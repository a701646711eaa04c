package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ContentPipeline/internal/audience"
	"ContentPipeline/internal/config"
	"ContentPipeline/internal/distribution"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/feedback"
	"ContentPipeline/internal/infrastructure/llm"
	"ContentPipeline/internal/infrastructure/metrics"
	"ContentPipeline/internal/infrastructure/ml"
	"ContentPipeline/internal/infrastructure/parser"
	"ContentPipeline/internal/infrastructure/scheduler"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/infrastructure/telegram"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/platform"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/revenue"
	"ContentPipeline/internal/scanner"
	"ContentPipeline/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	metrics  *metrics.Recorder
	sink     *feedback.AsyncSink
	repo     *storage.FeedbackRepository
}

// New validates cfg and builds every component. Any error here is a configuration
// error and nothing has been processed yet.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if err := scheduler.ParseSchedule(cfg.Scheduler.CronExpression); err != nil {
		return nil, fmt.Errorf("%w: scheduler: %w", domain.ErrInvalidConfig, err)
	}

	sources := cfg.DomainSources()
	scanners := scanner.NewRegistry()
	scanners.Register(parser.NewHTMLScanner(nil))
	scanners.Register(parser.NewJSONLScanner(baseLogger.With("component", "scanner.jsonl")))
	source := parser.NewStrategySource(scanners, baseLogger.With("component", "source"))
	if unknown := source.UnknownScanners(sources); len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown scanners %s (registered: %s)",
			domain.ErrInvalidConfig, strings.Join(unknown, ", "), strings.Join(scanners.Names(), ", "))
	}

	channels := platform.NewRegistry()
	if err := platform.RegisterDefaults(channels); err != nil {
		return nil, fmt.Errorf("register channels: %w", err)
	}

	resolver := audience.Default()
	if preferred := cfg.PreferredChannels(); len(preferred) > 0 {
		resolver = audience.Fixed(preferred...)
	}
	distributor, err := distribution.New(channels, cfg.ChannelIDs(), resolver)
	if err != nil {
		return nil, err
	}

	rules, err := revenue.Build(cfg.RuleSpecs())
	if err != nil {
		return nil, err
	}
	ruleSet := revenue.NewRuleSet(rules, baseLogger.With("component", "revenue"))

	inference := ml.NewClient(ml.Options{
		Endpoint: cfg.ML.InferenceURL,
		APIKey:   cfg.ML.APIKey,
		Models: ml.Models{
			Sentiment:  cfg.Models.Sentiment,
			Topic:      cfg.Models.Topic,
			Summarizer: cfg.Models.Summarizer,
			Generator:  cfg.Models.Generator,
		},
		Limits: ml.Limits{
			MaxInput:     cfg.ML.MaxInputChars,
			MaxSummary:   cfg.ML.MaxSummaryChars,
			MaxGenerated: cfg.ML.MaxGeneratedChars,
		},
		RequestsPerSecond: cfg.ML.RequestsPerSecond,
	})

	var generator ports.Generator = inference
	if cfg.ChatGPT.APIKey != "" {
		generator = llm.NewChatGPTClient(cfg.ChatGPT, cfg.ML.MaxGeneratedChars)
	}

	a := &Application{
		cfg:     cfg,
		logger:  baseLogger.With("component", "app"),
		metrics: metrics.NewRecorder(),
	}

	var sink ports.FeedbackSink = feedback.NopSink{}
	var repository ports.FeedbackRepository
	if cfg.Feedback.Driver != config.DriverNone {
		repo, err := storage.Open(ctx, cfg.Feedback.Driver, cfg.Feedback.DSN)
		if err != nil {
			return nil, fmt.Errorf("feedback storage: %w", err)
		}
		a.repo = repo
		a.sink = feedback.NewAsyncSink(repo, cfg.Feedback.Buffer, baseLogger.With("component", "feedback"))
		sink = a.sink
		repository = repo
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Configured() {
		notifier = tg
	}

	a.pipeline, err = usecase.NewPipeline(usecase.PipelineDeps{
		Source:       source,
		Sources:      sources,
		Sentiment:    inference,
		Topic:        inference,
		Summarizer:   inference,
		Generator:    generator,
		Distributor:  distributor,
		Rules:        ruleSet,
		Sink:         sink,
		Repository:   repository,
		Notifier:     notifier,
		Metrics:      a.metrics,
		Logger:       baseLogger,
		Workers:      cfg.Pipeline.Workers,
		Dedupe:       cfg.Pipeline.Dedupe,
		StageTimeout: cfg.Pipeline.StageTimeout,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.logger.Debug("application built",
		"sources", len(sources),
		"channels", channels.Channels(),
		"rules", ruleSet.Rules(),
		"feedback", cfg.Feedback.Driver,
		"chatgpt", cfg.ChatGPT.APIKey != "",
		"telegram", notifier != nil,
	)
	return a, nil
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) (domain.RunReport, error) {
	return a.pipeline.Run(ctx)
}

// Schedule runs the pipeline on the configured cron expression until ctx is done,
// serving /metrics when an address is configured.
func (a *Application) Schedule(ctx context.Context) error {
	driver, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger)
	if err != nil {
		return err
	}

	var srv *http.Server
	serveErr := make(chan error, 1)
	if addr := a.cfg.Scheduler.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	sched := usecase.NewScheduler(driver, a.pipeline, a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		runErr = fmt.Errorf("metrics server: %w", runErr)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return runErr
}

// Metrics exposes the Prometheus recorder.
func (a *Application) Metrics() *metrics.Recorder {
	return a.metrics
}

// Close drains pending feedback and releases storage.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain feedback: %w", err))
		}
		written, dropped, failed := a.sink.Stats()
		a.logger.Info("feedback sink closed", "written", written, "dropped", dropped, "failed", failed)
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close feedback storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
