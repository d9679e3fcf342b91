package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "notioncal/internal/log"
)

const (
	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"

	// MaxRecords caps the records fetched per database per run.
	MaxRecords = 500

	// PageSize is the page-size hint sent with each query.
	PageSize = 100

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 2048
)

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is returned for non-success responses.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("notion %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("notion %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// Timeout applies to every request when HTTPClient is nil.
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// Client talks to the Notion REST API. It is read-only.
type Client struct {
	baseURL string
	token   string
	http    HTTPDoer
}

func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    client,
	}
}

// QueryDatabase returns the records of a database, following continuation
// cursors until the API reports no more pages or MaxRecords is reached.
//
// On a failed request it stops and returns the records accumulated so far
// together with the error.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string) ([]Page, error) {
	path := "/databases/" + databaseID + "/query"
	pages := make([]Page, 0, PageSize)
	req := queryRequest{PageSize: PageSize}

	for len(pages) < MaxRecords {
		if remaining := MaxRecords - len(pages); remaining < req.PageSize {
			req.PageSize = remaining
		}

		var resp queryResponse
		if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return pages, err
		}

		results := resp.Results
		if room := MaxRecords - len(pages); len(results) > room {
			results = results[:room]
		}
		pages = append(pages, results...)

		if len(resp.Results) == 0 || !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			break
		}
		req.StartCursor = *resp.NextCursor
	}

	appLog.Debug("notion query complete", "database_id", databaseID, "records", len(pages))
	return pages, nil
}

// DatabaseTitle returns the plain-text title of a database.
func (c *Client) DatabaseTitle(ctx context.Context, databaseID string) (string, error) {
	var db database
	if err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, &db); err != nil {
		return "", err
	}
	return strings.TrimSpace(PlainText(db.Title)), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// RedactURL keeps only scheme and host of u for logging.
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "notion://...(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + redactedSuffix
}
