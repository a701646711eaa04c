package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/scanner"
)

// JSONLScanner reads newline-delimited JSON articles from a local file.
type JSONLScanner struct {
	logger *slog.Logger
}

var _ scanner.Scanner = (*JSONLScanner)(nil)

// NewJSONLScanner builds a scanner that logs skipped lines to log.
func NewJSONLScanner(log *slog.Logger) *JSONLScanner {
	return &JSONLScanner{logger: log}
}

// Name identifies the strategy inside the registry.
func (j *JSONLScanner) Name() string {
	return "jsonl"
}

// Scan loads every well-formed line; malformed lines are skipped with a warning.
func (j *JSONLScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	path := strings.TrimPrefix(req.URL, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var articles []domain.Article
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var art domain.Article
		if err := json.Unmarshal([]byte(text), &art); err != nil {
			j.warn("skipping malformed line", "path", path, "line", line, "error", err)
			continue
		}
		if art.Link == "" {
			art.Link = fmt.Sprintf("%s#L%d", req.URL, line)
		}
		if art.Source == "" {
			art.Source = req.SourceName
		}
		articles = append(articles, art)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return articles, nil
}

func (j *JSONLScanner) warn(msg string, args ...any) {
	if j.logger != nil {
		j.logger.Warn(msg, args...)
	}
}
