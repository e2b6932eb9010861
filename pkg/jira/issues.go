package jira

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/andygrunwald/go-jira"
	"golang.org/x/oauth2"
)

var issueKey = regexp.MustCompile(`^[A-Z][A-Z0-9_]+-[0-9]+$`)

// this adapter is needed since none of the upstream types
// are interfaces
type jiraAdapter struct {
	delegate *jira.Client
}

func (a *jiraAdapter) GetIssue(key string) (*jira.Issue, *jira.Response, error) {
	return a.delegate.Issue.Get(key, nil)
}

type jiraClient interface {
	GetIssue(key string) (*jira.Issue, *jira.Response, error)
}

// Resolver turns Jira references found in failure reports into Markdown
// links carrying the summary and status of the referenced issue.
type Resolver struct {
	client   jiraClient
	endpoint string
}

// NewResolver creates a resolver for the Jira instance at endpoint. The token
// is sent as a bearer credential and may be empty for anonymous access.
func NewResolver(ctx context.Context, endpoint, token string) (*Resolver, error) {
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	client, err := jira.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not create Jira client for %s: %w", endpoint, err)
	}
	return &Resolver{client: &jiraAdapter{delegate: client}, endpoint: strings.TrimSuffix(endpoint, "/")}, nil
}

// Describe returns "[KEY](<endpoint>/browse/KEY) summary (status)" for refs
// that look like issue keys. Any other ref, like a full URL, is returned
// unchanged without asking Jira.
func (r *Resolver) Describe(ref string) (string, error) {
	key := strings.TrimSpace(ref)
	if !issueKey.MatchString(key) {
		return ref, nil
	}
	issue, response, err := r.client.GetIssue(key)
	if err := jiraError(response, err); err != nil {
		return "", fmt.Errorf("could not get Jira issue %s: %w", key, err)
	}
	description := fmt.Sprintf("[%s](%s/browse/%s)", key, r.endpoint, key)
	if issue == nil || issue.Fields == nil {
		return description, nil
	}
	if issue.Fields.Summary != "" {
		description += " " + issue.Fields.Summary
	}
	if issue.Fields.Status != nil && issue.Fields.Status.Name != "" {
		description += fmt.Sprintf(" (%s)", issue.Fields.Status.Name)
	}
	return description, nil
}

func jiraError(response *jira.Response, err error) error {
	if err == nil {
		return nil
	}
	if response != nil && response.Response != nil {
		return fmt.Errorf("%w (status %d)", err, response.StatusCode)
	}
	return err
}
