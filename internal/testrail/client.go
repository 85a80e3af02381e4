// Package testrail is a minimal TestRail API v2 client covering the calls
// the templater needs: reading cases, sections and suites, and updating a
// case.
package testrail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/trutils/internal/testcase"
)

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 30 * time.Second

// maxPages stops a paginated read whose next links never end.
const maxPages = 10000

// Config holds connection settings.
type Config struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration

	// RequestsPerMinute throttles requests. Zero means unthrottled.
	RequestsPerMinute int

	// HTTPClient replaces the default client when set.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// APIError is a failed API call: a non-2xx status or an error body.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("testrail %s: HTTP %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("testrail %s: %s", e.Endpoint, e.Message)
}

// Client talks to one TestRail instance. Safe for concurrent use.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a client. URL, user and password are required.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.User == "" || cfg.Password == "" {
		return nil, errors.New("testrail: url, user and password are required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("testrail: invalid url %q", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.RequestsPerMinute < 0 {
		return nil, fmt.Errorf("testrail: requests per minute must not be negative, got %d", cfg.RequestsPerMinute)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		user:       cfg.User,
		password:   cfg.Password,
		httpClient: hc,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// links is the _links member of a paginated response.
type links struct {
	Next *string `json:"next"`
}

type casesPage struct {
	Links links           `json:"_links"`
	Cases []testcase.Case `json:"cases"`
}

type sectionsPage struct {
	Links    links              `json:"_links"`
	Sections []testcase.Section `json:"sections"`
}

type suite struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// GetCases returns every case in a project suite, following pagination.
func (c *Client) GetCases(ctx context.Context, projectID, suiteID int64) ([]testcase.Case, error) {
	endpoint := fmt.Sprintf("get_cases/%d", projectID)
	if suiteID > 0 {
		endpoint += fmt.Sprintf("&suite_id=%d", suiteID)
	}

	var out []testcase.Case
	err := c.paginate(ctx, "/api/v2/"+endpoint, func(body []byte) (*string, error) {
		if isArray(body) {
			var cases []testcase.Case
			if err := json.Unmarshal(body, &cases); err != nil {
				return nil, err
			}
			out = append(out, cases...)
			return nil, nil
		}
		var page casesPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Cases...)
		return page.Links.Next, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("testrail cases fetched", "project_id", projectID, "suite_id", suiteID, "count", len(out))
	return out, nil
}

// GetSections returns every section in a project suite, following pagination.
func (c *Client) GetSections(ctx context.Context, projectID, suiteID int64) ([]testcase.Section, error) {
	endpoint := fmt.Sprintf("get_sections/%d", projectID)
	if suiteID > 0 {
		endpoint += fmt.Sprintf("&suite_id=%d", suiteID)
	}

	var out []testcase.Section
	err := c.paginate(ctx, "/api/v2/"+endpoint, func(body []byte) (*string, error) {
		if isArray(body) {
			var secs []testcase.Section
			if err := json.Unmarshal(body, &secs); err != nil {
				return nil, err
			}
			out = append(out, secs...)
			return nil, nil
		}
		var page sectionsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Sections...)
		return page.Links.Next, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("testrail sections fetched", "project_id", projectID, "suite_id", suiteID, "count", len(out))
	return out, nil
}

// GetDefaultSuite returns the first suite of a project. Projects in single
// suite mode have exactly one.
func (c *Client) GetDefaultSuite(ctx context.Context, projectID int64) (int64, error) {
	endpoint := fmt.Sprintf("get_suites/%d", projectID)
	body, err := c.do(ctx, http.MethodGet, "/api/v2/"+endpoint, nil)
	if err != nil {
		return 0, err
	}

	var suites []suite
	if err := json.Unmarshal(body, &suites); err != nil {
		return 0, &APIError{Endpoint: endpoint, Message: fmt.Sprintf("decoding suites: %v", err)}
	}
	if len(suites) == 0 || suites[0].ID == 0 {
		return 0, &APIError{Endpoint: endpoint, Message: fmt.Sprintf("project %d has no suites", projectID)}
	}
	return suites[0].ID, nil
}

// UpdateCase writes the full case record.
func (c *Client) UpdateCase(ctx context.Context, caseID int64, tc testcase.Case) error {
	payload, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("encoding case %d: %w", caseID, err)
	}
	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v2/update_case/%d", caseID), payload)
	return err
}

// paginate fetches path and every page its next links point to. The
// callback consumes one body and returns the next link, or nil when done.
func (c *Client) paginate(ctx context.Context, path string, consume func([]byte) (*string, error)) error {
	seen := make(map[string]bool)
	next := path
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return &APIError{Endpoint: endpointName(path), Message: "pagination does not terminate"}
		}
		seen[next] = true

		body, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return err
		}
		link, err := consume(body)
		if err != nil {
			return &APIError{Endpoint: endpointName(path), Message: fmt.Sprintf("decoding response: %v", err)}
		}
		next = ""
		if link != nil {
			next = *link
		}
	}
	return nil
}

// do sends one request to baseURL/index.php?{path} and returns the body.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	endpoint := endpointName(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + "/index.php?" + path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("testrail %s: %w", endpoint, err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("testrail %s: %w", endpoint, err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("testrail request", "method", method, "endpoint", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("testrail %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("testrail %s: reading body: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if msg := bodyError(body); msg != "" {
		return nil, &APIError{Endpoint: endpoint, Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}

// bodyError extracts the "error" member TestRail puts in failed responses.
func bodyError(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var e struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &e); err != nil || e.Error == nil {
		return ""
	}
	return *e.Error
}

func errorMessage(body []byte) string {
	if msg := bodyError(body); msg != "" {
		return msg
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func isArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// endpointName turns "/api/v2/get_cases/1&suite_id=2" into "get_cases".
func endpointName(path string) string {
	p := strings.TrimPrefix(strings.TrimPrefix(path, "/"), "api/v2/")
	if i := strings.IndexAny(p, "/&"); i >= 0 {
		p = p[:i]
	}
	return p
}
