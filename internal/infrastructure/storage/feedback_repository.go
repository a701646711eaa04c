package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

const feedbackTable = "article_feedback"

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// FeedbackRepository persists recorded articles into Postgres or SQLite.
type FeedbackRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.FeedbackRepository = (*FeedbackRepository)(nil)

// NewFeedbackRepository wires a sql.DB opened with the given driver.
func NewFeedbackRepository(db *sql.DB, driver string) *FeedbackRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &FeedbackRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, driver, dsn string) (*FeedbackRepository, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported feedback driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := NewFeedbackRepository(db, driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// EnsureSchema creates the feedback table if it does not exist.
func (r *FeedbackRepository) EnsureSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ` + feedbackTable + ` (
			run_id      TEXT NOT NULL,
			link        TEXT NOT NULL,
			revenue     DOUBLE PRECISION NOT NULL,
			channels    TEXT NOT NULL,
			sentiment   TEXT NOT NULL,
			topic       TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, link)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + feedbackTable + `_link ON ` + feedbackTable + ` (link)`,
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AlreadyRecorded returns the subset of links that exist in storage from any run.
func (r *FeedbackRepository) AlreadyRecorded(ctx context.Context, links []string) (map[string]bool, error) {
	if r.db == nil || len(links) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := r.builder.
		Select("DISTINCT link").
		From(feedbackTable).
		Where(sq.Eq{"link": links}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recorded: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan link: %w", err)
		}
		result[link] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveFeedback upserts the feedback record for (run, link).
func (r *FeedbackRepository) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	if r.db == nil {
		return nil
	}

	channels := make([]string, len(fb.Channels))
	for i, ch := range fb.Channels {
		channels[i] = string(ch)
	}

	query, args, err := r.builder.
		Insert(feedbackTable).
		Columns("run_id", "link", "revenue", "channels", "sentiment", "topic", "recorded_at").
		Values(fb.RunID, fb.Link, fb.Revenue, strings.Join(channels, ","), string(fb.Sentiment), string(fb.Topic), fb.RecordedAt.UTC()).
		Suffix(`ON CONFLICT (run_id, link) DO UPDATE
			SET revenue = excluded.revenue,
			    channels = excluded.channels,
			    sentiment = excluded.sentiment,
			    topic = excluded.topic,
			    recorded_at = excluded.recorded_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert feedback: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (r *FeedbackRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
