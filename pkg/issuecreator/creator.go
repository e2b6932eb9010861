package issuecreator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"sigs.k8s.io/prow/pkg/github"

	"github.com/openshift/failure-issue-creator/pkg/failures"
	ghclient "github.com/openshift/failure-issue-creator/pkg/github"
)

// TrackerClient is the subset of the issue tracker the creator needs.
type TrackerClient interface {
	ListOpenIssues(ctx context.Context, org, repo string) ([]github.Issue, error)
	CreateIssue(ctx context.Context, org, repo, title, body string, assignees []string) (*ghclient.IssueHandle, error)
	GetIssueNodeID(ctx context.Context, issueURL string) (string, error)
	AddProjectV2Item(ctx context.Context, projectID, contentID string) (string, error)
	AddProjectCard(ctx context.Context, columnID, contentID string) (string, error)
}

// RowSource yields header-keyed CSV records and io.EOF at the end.
type RowSource interface {
	Next() (map[string]string, error)
}

type jiraDescriber interface {
	Describe(ref string) (string, error)
}

// Config is built once at startup and drives a whole batch.
type Config struct {
	Org  string
	Repo string

	// ProjectID is the project (v2) or project column (card) issues are linked into.
	ProjectID   string
	ProjectMode ghclient.ProjectMode

	// DockerID is appended to every issue body when set.
	DockerID string
	// Assignee is used for every issue and takes precedence over the CSV.
	Assignee string
	// IncludeAssignee honors the assignee column of each row.
	IncludeAssignee bool

	TitleStyle      failures.TitleStyle
	Validation      failures.Validation
	CheckDuplicates bool
	DryRun          bool
}

// Result summarizes a batch.
type Result struct {
	Rows       int
	Created    int
	Planned    int
	Skipped    int
	Linked     int
	LinkFailed int
	// Issues holds the URLs of created issues in creation order.
	Issues []string
}

type Creator struct {
	client TrackerClient
	config Config
	logger *logrus.Entry
	jira   jiraDescriber
}

type Option func(*Creator)

// WithJiraResolver renders the Jira bullet of each issue through the resolver.
func WithJiraResolver(resolver jiraDescriber) Option {
	return func(c *Creator) {
		c.jira = resolver
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(c *Creator) {
		c.logger = logger
	}
}

func New(client TrackerClient, config Config, opts ...Option) *Creator {
	c := &Creator{
		client: client,
		config: config,
		logger: logrus.WithField("repo", config.Org+"/"+config.Repo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every row of the source in order. A row that cannot be
// parsed, a failed duplicate check and a failed creation abort the batch;
// the result up to that point is returned alongside the error. Linking
// failures never abort.
func (c *Creator) Run(ctx context.Context, rows RowSource) (Result, error) {
	var result Result
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result.Rows++
		logger := c.logger.WithField("row", result.Rows)

		report, err := failures.ParseRow(row, c.config.Validation)
		if err != nil {
			return result, fmt.Errorf("row %d: %w", result.Rows, err)
		}
		if err := c.process(ctx, logger, report, &result); err != nil {
			return result, fmt.Errorf("row %d: %w", result.Rows, err)
		}
	}
}

func (c *Creator) process(ctx context.Context, logger *logrus.Entry, report failures.Report, result *Result) error {
	title := report.Title(c.config.TitleStyle)
	logger = logger.WithField("title", title)

	if c.config.CheckDuplicates {
		duplicate, err := c.findDuplicate(ctx, title)
		if err != nil {
			return err
		}
		if duplicate != nil {
			logger.WithField("url", duplicate.HTMLURL).Info("Skipping issue creation, duplicate found.")
			result.Skipped++
			return nil
		}
	}

	if report.JiraRef != "" && c.jira != nil {
		description, err := c.jira.Describe(report.JiraRef)
		if err != nil {
			logger.WithError(err).WithField("jira", report.JiraRef).Warn("Could not resolve Jira reference, using it verbatim.")
		} else {
			report.JiraRef = description
		}
	}
	body := report.Body(c.config.DockerID)
	assignees := c.assigneesFor(report)

	if c.config.DryRun {
		logger.WithField("assignees", assignees).Info("Dry run: would create issue.")
		result.Planned++
		return nil
	}

	issue, err := c.client.CreateIssue(ctx, c.config.Org, c.config.Repo, title, body, assignees)
	if err != nil {
		return err
	}
	result.Created++
	result.Issues = append(result.Issues, issue.URL)
	logger = logger.WithField("url", issue.URL)
	logger.Info("Issue created.")

	if c.link(ctx, logger, issue) {
		result.Linked++
	} else if c.linkingEnabled() {
		result.LinkFailed++
	}
	return nil
}

// findDuplicate lists the currently open issues and returns the one whose
// title is exactly the given title, if any.
func (c *Creator) findDuplicate(ctx context.Context, title string) (*github.Issue, error) {
	issues, err := c.client.ListOpenIssues(ctx, c.config.Org, c.config.Repo)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		if issues[i].Title == title {
			return &issues[i], nil
		}
	}
	return nil, nil
}

func (c *Creator) assigneesFor(report failures.Report) []string {
	switch {
	case c.config.Assignee != "":
		return []string{c.config.Assignee}
	case c.config.IncludeAssignee && report.Assignee != "":
		return []string{report.Assignee}
	default:
		return nil
	}
}

func (c *Creator) linkingEnabled() bool {
	return c.config.ProjectID != "" && c.config.ProjectMode != "" && c.config.ProjectMode != ghclient.ProjectModeNone
}

// link resolves the node ID of a freshly created issue and attaches it to the
// configured project. Failures are logged and reported as false.
func (c *Creator) link(ctx context.Context, logger *logrus.Entry, issue *ghclient.IssueHandle) bool {
	if !c.linkingEnabled() {
		return false
	}
	nodeID, err := c.client.GetIssueNodeID(ctx, issue.URL)
	if err != nil {
		logger.WithError(err).Warn("Failed to get global node ID for issue, not adding it to the project.")
		return false
	}
	issue.NodeID = nodeID

	var itemID string
	switch c.config.ProjectMode {
	case ghclient.ProjectModeV2:
		itemID, err = c.client.AddProjectV2Item(ctx, c.config.ProjectID, nodeID)
	case ghclient.ProjectModeCard:
		itemID, err = c.client.AddProjectCard(ctx, c.config.ProjectID, nodeID)
	default:
		err = fmt.Errorf("unknown project mode %q", c.config.ProjectMode)
	}
	if err != nil {
		logger.WithError(err).Warn("Failed to add issue to project.")
		return false
	}
	logger.WithFields(logrus.Fields{"project": c.config.ProjectID, "item": itemID}).Info("Issue added to project.")
	return true
}
