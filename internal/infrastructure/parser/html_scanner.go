package parser

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/scanner"
)

const (
	defaultHeadlineSelector = "h2.headline"
	defaultSummarySelector  = "p.summary"
	defaultLinkSelector     = "a.article-link"
)

// HTMLScanner fetches a listing page and zips headline, summary and link elements into articles.
type HTMLScanner struct {
	client    *http.Client
	userAgent string
}

var _ scanner.Scanner = (*HTMLScanner)(nil)

// NewHTMLScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewHTMLScanner(client *http.Client) *HTMLScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLScanner{client: client, userAgent: "ContentPipeline/1.0"}
}

// Name identifies the strategy inside the registry.
func (h *HTMLScanner) Name() string {
	return "html"
}

// Scan downloads the page and extracts every complete headline/summary/link triple.
// A page without matching elements yields an empty slice.
func (h *HTMLScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Article, error) {
	base, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %s: %w", req.URL, err)
	}

	doc, err := h.fetchDocument(ctx, base.String())
	if err != nil {
		return nil, err
	}

	return extractArticles(doc, base, req.SourceName, req.Selectors), nil
}

func (h *HTMLScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractArticles(doc *goquery.Document, base *url.URL, sourceName string, sel domain.Selectors) []domain.Article {
	headlines := texts(doc.Find(orDefault(sel.Headline, defaultHeadlineSelector)))
	summaries := texts(doc.Find(orDefault(sel.Summary, defaultSummarySelector)))
	links := hrefs(doc.Find(orDefault(sel.Link, defaultLinkSelector)))

	n := min(len(headlines), len(summaries), len(links))
	articles := make([]domain.Article, 0, n)
	for i := 0; i < n; i++ {
		articles = append(articles, domain.Article{
			Headline: headlines[i],
			Summary:  summaries[i],
			Link:     resolveLink(base, links[i], headlines[i]),
			Source:   sourceName,
		})
	}
	return articles
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func hrefs(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, strings.TrimSpace(href))
	})
	return out
}

// resolveLink makes relative links absolute and gives link-less entries a stable synthetic identity.
func resolveLink(base *url.URL, href, headline string) string {
	if href == "" {
		sum := sha1.Sum([]byte(base.String() + "\x00" + headline))
		return base.String() + "#" + hex.EncodeToString(sum[:8])
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
