package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/types"
)

const (
	maxRetries      = 3
	maxResponseSize = 50 * 1024 * 1024
)

// APIError is a non-2xx response.
type APIError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d) from %s", strings.TrimSpace(e.Body), e.StatusCode, e.URL)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// Client talks to the Bitbucket 2.0 REST API. It is safe for concurrent use.
type Client struct {
	Username   string // optional, for private repositories
	Password   string // app password
	Repo       string // "workspace/slug"
	BaseURL    string
	HTTPClient *http.Client

	// NewBackOff returns the retry policy for one request.
	NewBackOff func() backoff.BackOff

	mu    sync.Mutex
	users map[string]*types.SourceUser
}

// NewClient creates a Bitbucket client for repo.
func NewClient(username, password, repo string) *Client {
	return &Client{
		Username:   username,
		Password:   password,
		Repo:       repo,
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		NewBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// WithBaseURL returns a new client with a custom base URL.
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		Username:   c.Username,
		Password:   c.Password,
		Repo:       c.Repo,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: c.HTTPClient,
		NewBackOff: c.NewBackOff,
	}
}

// issuesURL is the issue collection of the repository.
func (c *Client) issuesURL() string {
	return c.BaseURL + "/repositories/" + c.Repo + "/issues"
}

func (c *Client) issueURL(id int, sub string) string {
	return c.issuesURL() + "/" + strconv.Itoa(id) + "/" + sub
}

// do performs one request with retries on network errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, urlStr string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.Username != "" {
			req.SetBasicAuth(c.Username, c.Password)
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		debug.LogRequest(method, urlStr, resp.StatusCode, time.Since(start))

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{URL: urlStr, StatusCode: resp.StatusCode, Body: string(data)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		body = data
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.NewBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return body, nil
}

// getJSON fetches urlStr and decodes it into v.
func (c *Client) getJSON(ctx context.Context, urlStr string, v interface{}) error {
	data, err := c.do(ctx, http.MethodGet, urlStr)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", urlStr, err)
	}
	return nil
}

// fetchAll follows "next" links starting at urlStr.
func fetchAll[T any](ctx context.Context, c *Client, urlStr string) ([]T, error) {
	var all []T
	for n := 0; urlStr != ""; n++ {
		if n >= MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		var p page[T]
		if err := c.getJSON(ctx, urlStr, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Values...)
		urlStr = p.Next
	}
	return all, nil
}

func withQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

// CheckAccess verifies the issue tracker exists and is readable with the
// configured credentials.
func (c *Client) CheckAccess(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodHead, c.issuesURL())
	switch StatusCode(err) {
	case 0:
		return err
	case http.StatusNotFound:
		return fmt.Errorf("could not find a Bitbucket issue tracker at %s (repository names are case-sensitive)", c.issuesURL())
	case http.StatusUnauthorized:
		return fmt.Errorf("failed to log in to Bitbucket as %q", c.Username)
	case http.StatusForbidden:
		if c.Username == "" {
			return fmt.Errorf("%s is private: pass a Bitbucket user and app password", c.Repo)
		}
		return fmt.Errorf("user %q has no access to %s", c.Username, c.issuesURL())
	default:
		return err
	}
}

// Comments returns the comments of one issue in id order.
func (c *Client) Comments(ctx context.Context, issueID int) ([]types.SourceComment, error) {
	raw, err := fetchAll[apiComment](ctx, c, withQuery(c.issueURL(issueID, "comments"), url.Values{"sort": {"id"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments of issue %d: %w", issueID, err)
	}
	out := make([]types.SourceComment, 0, len(raw))
	for _, rc := range raw {
		if rc.Content == nil || rc.Content.Raw == "" {
			continue
		}
		created, err := parseTime(rc.CreatedOn)
		if err != nil {
			return nil, fmt.Errorf("comment %d of issue %d: %w", rc.ID, issueID, err)
		}
		updated, err := parseTime(rc.UpdatedOn)
		if err != nil {
			return nil, fmt.Errorf("comment %d of issue %d: %w", rc.ID, issueID, err)
		}
		out = append(out, types.SourceComment{
			ID:        rc.ID,
			User:      rc.User.toSource(),
			Content:   rc.Content.Raw,
			CreatedOn: created,
			UpdatedOn: updated,
		})
	}
	return out, nil
}

// Changes returns the change log of one issue in id order.
func (c *Client) Changes(ctx context.Context, issueID int) ([]types.SourceChange, error) {
	raw, err := fetchAll[apiChange](ctx, c, withQuery(c.issueURL(issueID, "changes"), url.Values{"sort": {"id"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch changes of issue %d: %w", issueID, err)
	}
	out := make([]types.SourceChange, 0, len(raw))
	for _, rc := range raw {
		created, err := parseTime(rc.CreatedOn)
		if err != nil {
			return nil, fmt.Errorf("change of issue %d: %w", issueID, err)
		}
		ch := types.SourceChange{
			User:      rc.User.toSource(),
			CreatedOn: created,
			Changes:   make(map[string]types.FieldChange, len(rc.Changes)),
		}
		for field, fc := range rc.Changes {
			ch.Changes[field] = types.FieldChange{Old: deref(fc.Old), New: deref(fc.New)}
		}
		out = append(out, ch)
	}
	return out, nil
}

// Attachments lists the attachments of one issue, optionally with data.
// A download failure is recorded on the attachment, not returned.
func (c *Client) Attachments(ctx context.Context, issueID int, withData bool) ([]types.SourceAttachment, error) {
	raw, err := fetchAll[apiAttachment](ctx, c, c.issueURL(issueID, "attachments"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachments of issue %d: %w", issueID, err)
	}
	out := make([]types.SourceAttachment, 0, len(raw))
	for _, ra := range raw {
		a := types.SourceAttachment{Name: ra.Name, IssueID: issueID}
		if withData {
			href := ra.Links.Self.Href
			if href == "" {
				href = c.issueURL(issueID, "attachments/"+url.PathEscape(ra.Name))
			}
			a.Data, a.Err = c.do(ctx, http.MethodGet, href)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// LookupUser returns the display name of a Bitbucket user. Unknown users
// resolve to their username. Results are cached.
func (c *Client) LookupUser(ctx context.Context, username string) (*types.SourceUser, error) {
	if username == "" {
		return nil, nil
	}
	c.mu.Lock()
	if u, ok := c.users[username]; ok {
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	var au apiUser
	err := c.getJSON(ctx, c.BaseURL+"/users/"+url.PathEscape(username), &au)
	u := &types.SourceUser{Username: username, DisplayName: username}
	switch {
	case err == nil:
		if au.DisplayName != "" {
			u.DisplayName = au.DisplayName
		}
	case StatusCode(err) == http.StatusNotFound:
	default:
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	c.mu.Lock()
	if c.users == nil {
		c.users = make(map[string]*types.SourceUser)
	}
	c.users[username] = u
	c.mu.Unlock()
	return u, nil
}
