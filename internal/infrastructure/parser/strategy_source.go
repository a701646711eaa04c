package parser

import (
	"context"
	"fmt"
	"log/slog"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/scanner"
)

// StrategySource implements ArticleSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// Fetch resolves the source's scanner and executes it. Every failure is wrapped in domain.ErrAcquisition.
func (s *StrategySource) Fetch(ctx context.Context, src domain.Source) ([]domain.Article, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: scanner registry is not configured", domain.ErrAcquisition)
	}

	s.debug("process source", "source", src.Name, "scanner", src.Scanner, "url", src.URL)
	strategy, err := s.registry.Resolve(src.Scanner)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", domain.ErrAcquisition, src.Name, err)
	}

	results, err := strategy.Scan(ctx, scanner.Request{
		SourceName: src.Name,
		URL:        src.URL,
		Selectors:  src.Selectors,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan source %s: %w", domain.ErrAcquisition, src.Name, err)
	}

	for i := range results {
		if results[i].Source == "" {
			results[i].Source = src.Name
		}
	}
	s.debug("source produced articles", "source", src.Name, "count", len(results))
	return results, nil
}

// UnknownScanners returns the configured scanner names that are not registered.
func (s *StrategySource) UnknownScanners(sources []domain.Source) []string {
	var missing []string
	for _, src := range sources {
		if _, err := s.registry.Resolve(src.Scanner); err != nil {
			missing = append(missing, src.Scanner)
		}
	}
	return missing
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
