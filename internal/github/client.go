package github

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token      string       // GitHub personal access token
	Owner      string       // Repository owner (user or org)
	Repo       string       // Repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // Optional custom HTTP client

	// Transport governs every call. It is built from HTTPClient on first
	// use when nil.
	Transport *ratelimit.Transport
}

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// ParseRepo splits "owner/repo".
func ParseRepo(full string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: want owner/repo", full)
	}
	return parts[0], parts[1], nil
}

// WithHTTPClient returns a new client with a custom HTTP client. The new
// client gets a fresh transport.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: httpClient,
	}
}

// WithBaseURL returns a new client with a custom base URL (for testing or GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: c.HTTPClient,
		Transport:  c.Transport,
	}
}

// WithTransport returns a new client that sends through t.
func (c *Client) WithTransport(t *ratelimit.Transport) *Client {
	return &Client{
		Token:      c.Token,
		Owner:      c.Owner,
		Repo:       c.Repo,
		BaseURL:    c.BaseURL,
		HTTPClient: c.HTTPClient,
		Transport:  t,
	}
}

// FullName returns "owner/repo".
func (c *Client) FullName() string {
	return c.repoPath()
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path

	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}

	return u
}

func (c *Client) transport() *ratelimit.Transport {
	if c.Transport == nil {
		hc := c.HTTPClient
		if hc == nil {
			hc = &http.Client{Timeout: DefaultTimeout}
		}
		c.Transport = ratelimit.NewTransport(hc, nil)
	}
	return c.Transport
}

// doRequest performs an authenticated request through the rate-governed
// transport. Retries and rate waits happen inside the transport; a non-2xx
// result comes back as *ratelimit.Error.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	return c.doRequestAccept(ctx, method, urlStr, "application/vnd.github+json", body)
}

func (c *Client) doRequestAccept(ctx context.Context, method, urlStr, accept string, body interface{}) ([]byte, http.Header, error) {
	req := &ratelimit.Request{
		Method: method,
		URL:    urlStr,
		Header: http.Header{},
	}
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.Body = jsonBody
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	start := time.Now()
	resp, err := c.transport().Do(ctx, req)
	if err != nil {
		debug.LogRequest(method, urlStr, ratelimit.StatusCode(err), time.Since(start))
		return nil, nil, err
	}
	debug.LogRequest(method, urlStr, resp.StatusCode, time.Since(start))
	return resp.Body, resp.Header, nil
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// fetchAllPages GETs path page by page and decodes every page into T.
func fetchAllPages[T any](ctx context.Context, c *Client, path string, params map[string]string) ([]T, error) {
	var all []T
	page := 1

	for {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		p := map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		}
		for k, v := range params {
			p[k] = v
		}

		respBody, headers, err := c.doRequest(ctx, http.MethodGet, c.buildURL(path, p), nil)
		if err != nil {
			return nil, err
		}

		var items []T
		if err := json.Unmarshal(respBody, &items); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		all = append(all, items...)

		if _, ok := hasNextPage(headers); !ok {
			break
		}
		page++

		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
	}

	return all, nil
}

// GetRepository fetches the destination repository.
func (c *Client) GetRepository(ctx context.Context) (*Repository, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/repos/"+c.repoPath(), nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository %s: %w", c.repoPath(), err)
	}

	var repo Repository
	if err := json.Unmarshal(respBody, &repo); err != nil {
		return nil, fmt.Errorf("failed to parse repository response: %w", err)
	}
	return &repo, nil
}

// VerifyRepository checks that the repository exists under the configured
// name. GitHub silently redirects renamed repositories, which would send
// imports somewhere unexpected.
func (c *Client) VerifyRepository(ctx context.Context) (*Repository, error) {
	repo, err := c.GetRepository(ctx)
	if err != nil {
		return nil, err
	}
	if repo.FullName != c.repoPath() {
		return nil, fmt.Errorf("repository %s resolves to %s: use the new name", c.repoPath(), repo.FullName)
	}
	if !repo.HasIssues {
		return nil, fmt.Errorf("repository %s has issues disabled", c.repoPath())
	}
	return repo, nil
}

// AuthenticatedUser returns the user the token belongs to.
func (c *Client) AuthenticatedUser(ctx context.Context) (*User, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/user", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch authenticated user: %w", err)
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &user, nil
}

// UserExists reports whether a GitHub account with the given login exists.
func (c *Client) UserExists(ctx context.Context, login string) (bool, error) {
	_, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/users/"+url.PathEscape(login), nil), nil)
	if err != nil {
		if ratelimit.StatusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up user %s: %w", login, err)
	}
	return true, nil
}

// RateLimit queries the core quota and seeds the transport budget with it.
func (c *Client) RateLimit(ctx context.Context) (ratelimit.Budget, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/rate_limit", nil), nil)
	if err != nil {
		return ratelimit.Budget{}, fmt.Errorf("failed to fetch rate limit: %w", err)
	}

	var payload struct {
		Resources struct {
			Core struct {
				Limit     int   `json:"limit"`
				Remaining int   `json:"remaining"`
				Reset     int64 `json:"reset"`
			} `json:"core"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return ratelimit.Budget{}, fmt.Errorf("failed to parse rate limit response: %w", err)
	}
	core := payload.Resources.Core
	b := ratelimit.Budget{
		Remaining: core.Remaining,
		Limit:     core.Limit,
		Reset:     time.Unix(core.Reset, 0),
		Known:     true,
	}
	c.transport().SetBudget(b)
	return b, nil
}

// HighestIssueNumber returns the highest issue or pull request number in
// the repository, or 0 when it has none.
//
// Imported issues keep their original creation dates, so the newest item
// by creation date is only a lower bound. Numbers are dense, so the result
// is confirmed by probing upward until a number does not exist.
func (c *Client) HighestIssueNumber(ctx context.Context) (int, error) {
	params := map[string]string{
		"state":     "all",
		"sort":      "created",
		"direction": "desc",
		"per_page":  "1",
	}
	respBody, _, err := c.doRequest(ctx, http.MethodGet, c.buildURL("/repos/"+c.repoPath()+"/issues", params), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest issue: %w", err)
	}

	var issues []Issue
	if err := json.Unmarshal(respBody, &issues); err != nil {
		return 0, fmt.Errorf("failed to parse issues response: %w", err)
	}

	highest := 0
	if len(issues) > 0 {
		highest = issues[0].Number
	}
	for {
		exists, err := c.issueExists(ctx, highest+1)
		if err != nil {
			return 0, err
		}
		if !exists {
			return highest, nil
		}
		highest++
	}
}

// issueExists probes one issue number. Deleted issues (410) still occupy
// their number.
func (c *Client) issueExists(ctx context.Context, number int) (bool, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	_, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	switch ratelimit.StatusCode(err) {
	case 0:
		if err != nil {
			return false, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
		}
		return true, nil
	case http.StatusNotFound:
		return false, nil
	case http.StatusGone:
		return true, nil
	default:
		return false, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}
}

// StartImport submits one issue with its comments to the import API and
// returns the pending import handle.
func (c *Client) StartImport(ctx context.Context, req *ImportRequest) (*ImportStatus, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/import/issues", nil)
	respBody, _, err := c.doRequestAccept(ctx, http.MethodPost, urlStr, importAccept, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start import: %w", err)
	}

	var status ImportStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse import response: %w", err)
	}
	if status.URL == "" {
		return nil, fmt.Errorf("import response carries no status url")
	}
	return &status, nil
}

// ImportStatus fetches the state of an import handle. The status URL may
// briefly return 404 right after submission; that is reported as pending.
func (c *Client) ImportStatus(ctx context.Context, statusURL string) (*ImportStatus, error) {
	respBody, _, err := c.doRequestAccept(ctx, http.MethodGet, statusURL, importAccept, nil)
	if err != nil {
		if ratelimit.StatusCode(err) == http.StatusNotFound {
			return &ImportStatus{Status: ImportPending, URL: statusURL}, nil
		}
		return nil, fmt.Errorf("failed to fetch import status: %w", err)
	}

	var status ImportStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse import status: %w", err)
	}
	return &status, nil
}

// AddComment posts a comment on an issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) (*Comment, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number)+"/comments", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("failed to comment on issue #%d: %w", number, err)
	}

	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, fmt.Errorf("failed to parse comment response: %w", err)
	}
	return &comment, nil
}

// CloseIssue sets an issue's state to closed.
// GitHub uses PATCH for issue updates.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, map[string]string{"state": "closed"})
	if err != nil {
		return fmt.Errorf("failed to close issue #%d: %w", number, err)
	}
	return nil
}

// ListLabels retrieves every label of the repository.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	labels, err := fetchAllPages[Label](ctx, c, "/repos/"+c.repoPath()+"/labels", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// CreateLabel creates a label with a random muted color.
func (c *Client) CreateLabel(ctx context.Context, name string) (*Label, error) {
	reqBody := map[string]string{
		"name":  name,
		"color": randomLabelColor(),
	}
	respBody, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL("/repos/"+c.repoPath()+"/labels", nil), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create label %q: %w", name, err)
	}

	var label Label
	if err := json.Unmarshal(respBody, &label); err != nil {
		return nil, fmt.Errorf("failed to parse label response: %w", err)
	}
	return &label, nil
}

// randomLabelColor picks each channel from multiples of 16.
func randomLabelColor() string {
	return fmt.Sprintf("%02X%02X%02X", rand.IntN(16)*16, rand.IntN(16)*16, rand.IntN(16)*16)
}

// ListMilestones retrieves every milestone, open and closed.
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	milestones, err := fetchAllPages[Milestone](ctx, c, "/repos/"+c.repoPath()+"/milestones", map[string]string{"state": "all"})
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	return milestones, nil
}

// CreateMilestone creates an open milestone.
func (c *Client) CreateMilestone(ctx context.Context, title string) (*Milestone, error) {
	respBody, _, err := c.doRequest(ctx, http.MethodPost, c.buildURL("/repos/"+c.repoPath()+"/milestones", nil), map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone %q: %w", title, err)
	}

	var m Milestone
	if err := json.Unmarshal(respBody, &m); err != nil {
		return nil, fmt.Errorf("failed to parse milestone response: %w", err)
	}
	return &m, nil
}
