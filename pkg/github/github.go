package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	githubql "github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"sigs.k8s.io/prow/pkg/github"
)

const (
	DefaultEndpoint        = "https://api.github.com"
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"

	perPage = 100
)

type Opts struct {
	// The token sent as a bearer credential on every request
	Token string
	// Base URL of the REST API
	Endpoint string
	// URL of the GraphQL API
	GraphQLEndpoint string
	// How often idempotent REST reads are retried
	MaxRetries int
}

type Opt func(*Opts)

func WithToken(token string) Opt {
	return func(o *Opts) {
		o.Token = token
	}
}

func WithEndpoints(endpoint, graphqlEndpoint string) Opt {
	return func(o *Opts) {
		if endpoint != "" {
			o.Endpoint = endpoint
		}
		if graphqlEndpoint != "" {
			o.GraphQLEndpoint = graphqlEndpoint
		}
	}
}

func WithMaxRetries(retries int) Opt {
	return func(o *Opts) {
		o.MaxRetries = retries
	}
}

// IssueHandle identifies an issue created in the tracker. NodeID is filled in
// lazily once it has been looked up.
type IssueHandle struct {
	Number int
	URL    string
	NodeID string
}

// APIError is returned for every non-2xx response of the tracker.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got unexpected http status code %d for %s %s, response body: %s", e.StatusCode, e.Method, e.URL, e.Body)
}

// Client talks to the REST and GraphQL APIs of GitHub. REST reads go through
// a retrying client; writes and GraphQL mutations are sent exactly once.
type Client struct {
	endpoint string
	rest     *retryablehttp.Client
	graphql  *githubql.Client
}

func NewClient(ctx context.Context, opts ...Opt) *Client {
	o := Opts{
		Endpoint:        DefaultEndpoint,
		GraphQLEndpoint: DefaultGraphQLEndpoint,
	}
	for _, opt := range opts {
		opt(&o)
	}
	rest := retryablehttp.NewClient()
	rest.Logger = nil
	rest.RetryMax = o.MaxRetries
	rest.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if o.Token != "" {
		rest.HTTPClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.Token}))
	}
	return &Client{
		endpoint: strings.TrimSuffix(o.Endpoint, "/"),
		rest:     rest,
		graphql:  githubql.NewEnterpriseClient(o.GraphQLEndpoint, rest.HTTPClient),
	}
}

// ListOpenIssues returns every open issue of org/repo, following pagination
// until a short page is returned.
func (c *Client) ListOpenIssues(ctx context.Context, org, repo string) ([]github.Issue, error) {
	var issues []github.Issue
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/%s/issues?state=open&per_page=%d&page=%d", org, repo, perPage, page)
		var batch []github.Issue
		if err := c.request(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("failed to list open issues of %s/%s: %w", org, repo, err)
		}
		issues = append(issues, batch...)
		if len(batch) < perPage {
			return issues, nil
		}
	}
}

type issueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Assignees []string `json:"assignees,omitempty"`
}

// CreateIssue files a new issue. Assignees are omitted from the request
// entirely when none are given.
func (c *Client) CreateIssue(ctx context.Context, org, repo, title, body string, assignees []string) (*IssueHandle, error) {
	var created github.Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", org, repo)
	if err := c.request(ctx, http.MethodPost, path, issueRequest{Title: title, Body: body, Assignees: assignees}, &created); err != nil {
		return nil, fmt.Errorf("failed to create issue in %s/%s: %w", org, repo, err)
	}
	return &IssueHandle{Number: created.Number, URL: created.HTMLURL}, nil
}

type nodeIDResponse struct {
	NodeID string `json:"node_id"`
}

// GetIssueNodeID resolves the GraphQL node identifier of the issue behind the
// given public URL.
func (c *Client) GetIssueNodeID(ctx context.Context, issueURL string) (string, error) {
	org, repo, number, err := ParseIssueURL(issueURL)
	if err != nil {
		return "", err
	}
	var response nodeIDResponse
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues/%d", org, repo, number), nil, &response); err != nil {
		return "", fmt.Errorf("failed to get global node ID for issue %s: %w", issueURL, err)
	}
	if response.NodeID == "" {
		return "", fmt.Errorf("issue %s has no node ID", issueURL)
	}
	return response.NodeID, nil
}

// ParseIssueURL splits https://<host>/<org>/<repo>/issues/<number>.
func ParseIssueURL(issueURL string) (org, repo string, number int, err error) {
	parsed, err := url.Parse(issueURL)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid issue URL %q: %w", issueURL, err)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-2] != "issues" {
		return "", "", 0, fmt.Errorf("invalid issue URL %q: expected .../<org>/<repo>/issues/<number>", issueURL)
	}
	number, err = strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid issue number in URL %q: %w", issueURL, err)
	}
	return parts[len(parts)-4], parts[len(parts)-3], number, nil
}

// request sends GETs through the retrying client and everything else exactly
// once through the underlying HTTP client.
func (c *Client) request(ctx context.Context, method, path string, payload, into interface{}) error {
	address := c.endpoint + path
	var resp *http.Response
	if method == http.MethodGet {
		req, err := retryablehttp.NewRequestWithContext(ctx, method, address, nil)
		if err != nil {
			return fmt.Errorf("failed to construct request: %w", err)
		}
		setHeaders(req.Header, false)
		resp, err = c.rest.Do(req)
		if err != nil {
			return fmt.Errorf("failed to %s %s: %w", method, address, err)
		}
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, method, address, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("failed to construct request: %w", err)
		}
		setHeaders(req.Header, true)
		resp, err = c.rest.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to %s %s: %w", method, address, err)
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body of %s %s: %w", method, address, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, URL: address, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("failed to unmarshal response of %s %s: %w", method, address, err)
	}
	return nil
}

func setHeaders(header http.Header, hasBody bool) {
	header.Set("Accept", "application/vnd.github.v3+json")
	if hasBody {
		header.Set("Content-Type", "application/json")
	}
}
