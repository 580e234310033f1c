// Package newsapi is a small client for the upstream news API
// (top-headlines and sources endpoints).
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SourceRecord is a publisher as returned by the sources endpoint.
type SourceRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Language    string `json:"language"`
	Country     string `json:"country"`
}

type ArticleSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArticleRecord is an upstream headline. Any field may be empty; PublishedAt
// is kept as the raw ISO-8601 string.
type ArticleRecord struct {
	Source      ArticleSource `json:"source"`
	Author      string        `json:"author"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	URLToImage  string        `json:"urlToImage"`
	PublishedAt string        `json:"publishedAt"`
	Content     string        `json:"content"`
}

type HeadlinesResult struct {
	Articles     []ArticleRecord
	TotalResults int
}

// APIError is a non-success answer from the upstream API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("newsapi: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. A nil httpClient gets a 30s timeout default and
// a nil logger discards output.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      httpClient,
		logger:  logger,
	}
}

// ListSources fetches every publisher the upstream knows about.
func (c *Client) ListSources(ctx context.Context) ([]SourceRecord, error) {
	var body struct {
		Sources []SourceRecord `json:"sources"`
	}
	if err := c.get(ctx, "/top-headlines/sources", nil, &body); err != nil {
		return nil, err
	}
	return body.Sources, nil
}

// SearchHeadlines issues a single top-headlines call.
func (c *Client) SearchHeadlines(ctx context.Context, p Params) (*HeadlinesResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var body struct {
		TotalResults int             `json:"totalResults"`
		Articles     []ArticleRecord `json:"articles"`
	}
	if err := c.get(ctx, "/top-headlines", p.Values(), &body); err != nil {
		return nil, err
	}
	return &HeadlinesResult{Articles: body.Articles, TotalResults: body.TotalResults}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("newsapi new request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("newsapi request failed", "path", path, "error", err, "latency", time.Since(start))
		return fmt.Errorf("newsapi request %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("newsapi request", "path", path, "status", resp.StatusCode, "latency", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("newsapi read body %s: %w", path, err)
	}

	var envelope struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	// error bodies are JSON too; ignore decode errors here and report below
	_ = json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || envelope.Status == "error" {
		msg := envelope.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Code: envelope.Code, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("newsapi decode %s: %w", path, err)
	}
	return nil
}
