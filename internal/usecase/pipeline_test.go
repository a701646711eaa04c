package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"ContentPipeline/internal/audience"
	"ContentPipeline/internal/distribution"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/platform"
	"ContentPipeline/internal/revenue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSource struct {
	articles map[string][]domain.Article
	fail     map[string]error
}

func (s stubSource) Fetch(_ context.Context, src domain.Source) ([]domain.Article, error) {
	if err := s.fail[src.Name]; err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAcquisition, err)
	}
	return s.articles[src.Name], nil
}

// stubNLP fails any call whose text contains "FAIL" and panics on "PANIC".
type stubNLP struct {
	entered chan struct{}
	release chan struct{}
	slow    bool
}

func (s *stubNLP) ClassifySentiment(_ context.Context, text string) (domain.Label, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	if strings.Contains(text, "FAIL") {
		return "", errors.New("model unavailable")
	}
	return "positive", nil
}

func (s *stubNLP) ClassifyTopic(_ context.Context, text string) (domain.Label, error) {
	return "tech", nil
}

func (s *stubNLP) Summarize(ctx context.Context, text string) (string, error) {
	if s.slow {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "summary of " + text, nil
}

func (s *stubNLP) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "PANIC") {
		panic("generator exploded")
	}
	return "generated", nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []domain.Feedback
}

func (r *recordingSink) Record(_ context.Context, fb domain.Feedback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, fb)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type historyRepo struct {
	recorded map[string]bool
	err      error
}

func (h historyRepo) AlreadyRecorded(context.Context, []string) (map[string]bool, error) {
	return h.recorded, h.err
}

func (h historyRepo) SaveFeedback(context.Context, domain.Feedback) error { return nil }

type countingMetrics struct {
	mu       sync.Mutex
	outcomes int
	runs     int
}

func (c *countingMetrics) ObserveOutcome(domain.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes++
}

func (c *countingMetrics) ObserveRun(domain.RunReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
}

type capturingNotifier struct {
	digests []string
	err     error
}

func (c *capturingNotifier) PublishDigest(_ context.Context, digest string) error {
	c.digests = append(c.digests, digest)
	return c.err
}

func articles(prefix string, n int, failing ...int) []domain.Article {
	fail := map[int]bool{}
	for _, i := range failing {
		fail[i] = true
	}
	out := make([]domain.Article, n)
	for i := range out {
		summary := fmt.Sprintf("body %d", i)
		if fail[i] {
			summary = "FAIL " + summary
		}
		out[i] = domain.Article{
			Headline: fmt.Sprintf("headline %d", i),
			Summary:  summary,
			Link:     fmt.Sprintf("https://%s.example/%d", prefix, i),
		}
	}
	return out
}

func newDistributor(t *testing.T) *distribution.Distributor {
	t.Helper()

	reg := platform.NewRegistry()
	if err := platform.RegisterDefaults(reg); err != nil {
		t.Fatalf("RegisterDefaults: %v", err)
	}
	configured := []domain.ChannelID{platform.Website, platform.Blog, platform.SocialMedia, platform.ContentAggregator}
	d, err := distribution.New(reg, configured, audience.Default())
	if err != nil {
		t.Fatalf("distribution.New: %v", err)
	}
	return d
}

func newPipeline(t *testing.T, deps PipelineDeps) *Pipeline {
	t.Helper()

	nlp := &stubNLP{}
	if deps.Sentiment == nil {
		deps.Sentiment = nlp
	}
	if deps.Topic == nil {
		deps.Topic = nlp
	}
	if deps.Summarizer == nil {
		deps.Summarizer = nlp
	}
	if deps.Generator == nil {
		deps.Generator = nlp
	}
	if deps.Distributor == nil {
		deps.Distributor = newDistributor(t)
	}
	if deps.Rules == nil {
		deps.Rules = revenue.NewRuleSet(revenue.DefaultRules(), logging.Discard())
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	p, err := NewPipeline(deps)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestRunRecordsReferenceArticle(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := newPipeline(t, PipelineDeps{
		Source:  stubSource{articles: map[string][]domain.Article{"a": articles("a", 1)}},
		Sources: []domain.Source{{Name: "a"}},
		Sink:    sink,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID == "" {
		t.Fatal("run id is empty")
	}
	if report.Recorded() != 1 {
		t.Fatalf("recorded = %d, want 1", report.Recorded())
	}

	out := report.Outcomes[0]
	if out.Revenue.Total != 600 {
		t.Fatalf("revenue = %v, want 600", out.Revenue.Total)
	}
	if len(out.Adapted) != 2 {
		t.Fatalf("adapted keys = %v, want blog and social-media", out.Adapted.Channels())
	}
	if got := out.Adapted[platform.Blog]; got != "Blog Content:\ngenerated" {
		t.Fatalf("blog content = %q", got)
	}
	if _, ok := out.Adapted[platform.SocialMedia]; !ok {
		t.Fatal("social-media channel missing")
	}
	if out.Analysis.Sentiment != "positive" || out.Analysis.Topics != "tech" {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
	if out.Summary != "summary of body 0" {
		t.Fatalf("summary = %q", out.Summary)
	}

	if sink.count() != 1 {
		t.Fatalf("sink records = %d, want 1", sink.count())
	}
	fb := sink.records[0]
	if fb.Revenue != 600 || fb.RunID != report.RunID || fb.Link != out.Article.Link {
		t.Fatalf("feedback = %+v", fb)
	}
}

func TestRunIsolatesAnalysisFailures(t *testing.T) {
	t.Parallel()

	const n = 10
	failing := []int{1, 4, 7}
	sink := &recordingSink{}
	metrics := &countingMetrics{}
	p := newPipeline(t, PipelineDeps{
		Source:  stubSource{articles: map[string][]domain.Article{"a": articles("a", n, failing...)}},
		Sources: []domain.Source{{Name: "a"}},
		Sink:    sink,
		Metrics: metrics,
		Workers: 4,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Recorded() != n-len(failing) || report.Failed() != len(failing) {
		t.Fatalf("recorded=%d failed=%d, want %d/%d", report.Recorded(), report.Failed(), n-len(failing), len(failing))
	}
	if sink.count() != n-len(failing) {
		t.Fatalf("sink records = %d", sink.count())
	}
	if metrics.outcomes != n || metrics.runs != 1 {
		t.Fatalf("metrics outcomes=%d runs=%d", metrics.outcomes, metrics.runs)
	}

	for i, out := range report.Outcomes {
		if want := fmt.Sprintf("https://a.example/%d", i); out.Article.Link != want {
			t.Fatalf("outcome %d link = %q, want input order", i, out.Article.Link)
		}
		if out.State != domain.StateFailed {
			continue
		}
		if out.FailedStage != domain.StageAnalyze {
			t.Fatalf("failed stage = %q, want analyze", out.FailedStage)
		}
		if !errors.Is(out.Err, domain.ErrAnalysis) {
			t.Fatalf("err = %v, want ErrAnalysis", out.Err)
		}
		var stageErr *domain.StageError
		if !errors.As(out.Err, &stageErr) || stageErr.Link != out.Article.Link {
			t.Fatalf("err = %v, want StageError with link", out.Err)
		}
	}
}

func TestRunSkipsFailedSource(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, PipelineDeps{
		Source: stubSource{
			articles: map[string][]domain.Article{"good": articles("good", 2)},
			fail:     map[string]error{"bad": errors.New("connection refused")},
		},
		Sources: []domain.Source{{Name: "bad"}, {Name: "good"}},
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SourcesFailed != 1 || report.SourcesScanned != 1 {
		t.Fatalf("sources failed=%d scanned=%d", report.SourcesFailed, report.SourcesScanned)
	}
	if report.Recorded() != 2 {
		t.Fatalf("recorded = %d, want 2", report.Recorded())
	}
}

func TestRunEmptySource(t *testing.T) {
	t.Parallel()

	notifier := &capturingNotifier{}
	p := newPipeline(t, PipelineDeps{
		Source:   stubSource{},
		Sources:  []domain.Source{{Name: "empty"}},
		Notifier: notifier,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Outcomes) != 0 || report.SourcesScanned != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(notifier.digests) != 0 {
		t.Fatal("digest published for an empty run")
	}
}

func TestRunDedupe(t *testing.T) {
	t.Parallel()

	shared := articles("x", 3)
	src := stubSource{articles: map[string][]domain.Article{
		"one": shared,
		"two": append([]domain.Article{shared[1]}, articles("y", 1)...),
	}}
	sources := []domain.Source{{Name: "one"}, {Name: "two"}}

	tests := []struct {
		name     string
		dedupe   string
		repo     historyRepo
		recorded int
		skipped  int
	}{
		{name: "none", dedupe: DedupeNone, recorded: 5},
		{name: "run", dedupe: DedupeRun, recorded: 4, skipped: 1},
		{name: "history", dedupe: DedupeHistory, repo: historyRepo{recorded: map[string]bool{shared[0].Link: true}}, recorded: 3, skipped: 2},
		{name: "history lookup fails", dedupe: DedupeHistory, repo: historyRepo{err: errors.New("db down")}, recorded: 4, skipped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := PipelineDeps{Source: src, Sources: sources, Dedupe: tt.dedupe}
			if tt.dedupe == DedupeHistory {
				deps.Repository = tt.repo
			}
			report, err := newPipeline(t, deps).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Recorded() != tt.recorded || report.Skipped != tt.skipped {
				t.Fatalf("recorded=%d skipped=%d, want %d/%d", report.Recorded(), report.Skipped, tt.recorded, tt.skipped)
			}
		})
	}
}

func TestRunCancellationFinishesInFlight(t *testing.T) {
	t.Parallel()

	nlp := &stubNLP{entered: make(chan struct{}), release: make(chan struct{})}
	p := newPipeline(t, PipelineDeps{
		Source:    stubSource{articles: map[string][]domain.Article{"a": articles("a", 5)}},
		Sources:   []domain.Source{{Name: "a"}},
		Sentiment: nlp,
		Workers:   1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		report domain.RunReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := p.Run(ctx)
		done <- result{r, err}
	}()

	<-nlp.entered
	cancel()
	close(nlp.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}

	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", res.err)
	}
	if res.report.Recorded() != 1 {
		t.Fatalf("recorded = %d, want the in-flight article only", res.report.Recorded())
	}
	if res.report.Cancelled != 4 {
		t.Fatalf("cancelled = %d, want 4", res.report.Cancelled)
	}
}

func TestRunRecoversStagePanic(t *testing.T) {
	t.Parallel()

	batch := articles("a", 2)
	batch[0].Summary = "PANIC"
	p := newPipeline(t, PipelineDeps{
		Source:  stubSource{articles: map[string][]domain.Article{"a": batch}},
		Sources: []domain.Source{{Name: "a"}},
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := report.Outcomes[0]
	if out.State != domain.StateFailed || out.FailedStage != domain.StageGenerate {
		t.Fatalf("outcome = %s at %s, want failed at generate", out.State, out.FailedStage)
	}
	if !errors.Is(out.Err, domain.ErrStagePanic) {
		t.Fatalf("err = %v, want ErrStagePanic", out.Err)
	}
	if report.Outcomes[1].State != domain.StateRecorded {
		t.Fatalf("second article state = %s", report.Outcomes[1].State)
	}
}

func TestRunLogsFailedRulesWithLink(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	rules := revenue.NewRuleSet([]revenue.Rule{
		revenue.Constant{RuleName: "advertisement", Amount: 100},
		revenue.RuleFunc{RuleName: "broken", Fn: func(domain.AdaptedContent, domain.Label) (float64, error) {
			return 0, errors.New("pricing feed offline")
		}},
	}, logging.Discard())

	p := newPipeline(t, PipelineDeps{
		Source:  stubSource{articles: map[string][]domain.Article{"a": articles("a", 1)}},
		Sources: []domain.Source{{Name: "a"}},
		Rules:   rules,
		Logger:  logging.NewWithWriter(&logs, "info", "text"),
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := report.Outcomes[0]
	if out.State != domain.StateRecorded || out.Revenue.Total != 100 {
		t.Fatalf("outcome = %s revenue %v, want recorded with 100", out.State, out.Revenue.Total)
	}

	var line string
	for _, l := range strings.Split(logs.String(), "\n") {
		if strings.Contains(l, "revenue rules counted as zero") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("no rule failure log line:\n%s", logs.String())
	}
	for _, want := range []string{"link=" + out.Article.Link, "stage=monetize", "rules=broken"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestRunStageTimeout(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, PipelineDeps{
		Source:       stubSource{articles: map[string][]domain.Article{"a": articles("a", 1)}},
		Sources:      []domain.Source{{Name: "a"}},
		Summarizer:   &stubNLP{slow: true},
		StageTimeout: 20 * time.Millisecond,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := report.Outcomes[0]
	if out.FailedStage != domain.StageSummarize || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("outcome = %s at %s: %v", out.State, out.FailedStage, out.Err)
	}
	if out.Analysis.Sentiment != "positive" {
		t.Fatal("analysis result lost on later failure")
	}
}

func TestRunPublishesDigest(t *testing.T) {
	t.Parallel()

	notifier := &capturingNotifier{err: errors.New("telegram down")}
	p := newPipeline(t, PipelineDeps{
		Source:   stubSource{articles: map[string][]domain.Article{"a": articles("a", 2, 1)}},
		Sources:  []domain.Source{{Name: "a"}},
		Notifier: notifier,
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run must not fail on notifier error: %v", err)
	}
	if len(notifier.digests) != 1 {
		t.Fatalf("digests = %d, want 1", len(notifier.digests))
	}
	digest := notifier.digests[0]
	for _, want := range []string{report.RunID, "Recorded: 1, failed: 1", "Estimated revenue: 600.00", "headline 0"} {
		if !strings.Contains(digest, want) {
			t.Fatalf("digest missing %q:\n%s", want, digest)
		}
	}
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(PipelineDeps{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}

	nlp := &stubNLP{}
	base := PipelineDeps{
		Source:      stubSource{},
		Sentiment:   nlp,
		Topic:       nlp,
		Summarizer:  nlp,
		Generator:   nlp,
		Distributor: newDistributor(t),
		Rules:       revenue.NewRuleSet(nil, nil),
	}

	withDedupe := func(policy string) PipelineDeps {
		d := base
		d.Dedupe = policy
		return d
	}
	if _, err := NewPipeline(withDedupe("sometimes")); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("unknown dedupe err = %v", err)
	}
	if _, err := NewPipeline(withDedupe(DedupeHistory)); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("history without repository err = %v", err)
	}
	if _, err := NewPipeline(base); err != nil {
		t.Fatalf("valid deps: %v", err)
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	if got := Prompt("", "body"); got != "body" {
		t.Fatalf("Prompt without topic = %q", got)
	}
	if got := Prompt("tech", "body"); got != "Topic: tech\n\nbody" {
		t.Fatalf("Prompt = %q", got)
	}
}
