package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	"github.com/openshift/failure-issue-creator/pkg/failures"
	ghclient "github.com/openshift/failure-issue-creator/pkg/github"
	"github.com/openshift/failure-issue-creator/pkg/issuecreator"
	"github.com/openshift/failure-issue-creator/pkg/jira"
	"github.com/openshift/failure-issue-creator/pkg/slack"
)

const tokenEnv = "GITHUB_TOKEN"

var (
	projectModes = sets.New[string](string(ghclient.ProjectModeNone), string(ghclient.ProjectModeV2), string(ghclient.ProjectModeCard))
	titleStyles  = sets.New[string](string(failures.TitleStyleConfig), string(failures.TitleStyleLegacy))
)

type options struct {
	configPath string

	csvPath   string
	repo      string
	org       string
	repoName  string
	projectID string

	projectMode     string
	dockerID        string
	assignee        string
	includeAssignee bool
	titleStyle      string
	lenient         bool
	checkDuplicates bool
	dryRun          bool

	token           string
	tokenPath       string
	githubEndpoint  string
	graphqlEndpoint string
	maxRetries      int

	jiraEndpoint  string
	jiraTokenPath string
	jiraToken     string

	slackTokenPath string
	slackChannel   string
	slackToken     string

	logLevel string
}

// fileConfig is the YAML configuration bundle accepted by --config. Values
// given on the command line take precedence.
type fileConfig struct {
	CSVFile         string `json:"csv_file,omitempty"`
	Repo            string `json:"repo,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
	ProjectMode     string `json:"project_mode,omitempty"`
	DockerID        string `json:"docker_id,omitempty"`
	Assignee        string `json:"assignee,omitempty"`
	IncludeAssignee *bool  `json:"include_assignee,omitempty"`
	TitleStyle      string `json:"title_style,omitempty"`
	Lenient         *bool  `json:"lenient,omitempty"`
	DuplicateCheck  *bool  `json:"duplicate_check,omitempty"`
	GitHubEndpoint  string `json:"github_endpoint,omitempty"`
	GraphQLEndpoint string `json:"github_graphql_endpoint,omitempty"`
	MaxRetries      *int   `json:"max_retries,omitempty"`
	JiraEndpoint    string `json:"jira_endpoint,omitempty"`
	SlackChannel    string `json:"slack_channel,omitempty"`
}

func (o *options) bindFlags(fs *pflag.FlagSet) {
	// --docker_id and friends keep working next to --docker-id
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.StringVar(&o.configPath, "config", "", "Path to a YAML file with default values for the options below.")
	fs.StringVar(&o.projectID, "project-id", "", "Node ID of the project (or of the project column with --project-mode=card) issues are added to.")
	fs.StringVar(&o.projectMode, "project-mode", string(ghclient.ProjectModeV2), "How issues are linked to the project: v2, card or none.")
	fs.StringVar(&o.dockerID, "docker-id", "", "Docker ID to include in the description of every issue.")
	fs.StringVar(&o.assignee, "assignee", "", "GitHub login assigned to every created issue. Takes precedence over the CSV.")
	fs.BoolVar(&o.includeAssignee, "include-assignee", false, "Assign issues to the login in the assignee column of each row.")
	fs.StringVar(&o.titleStyle, "title-style", string(failures.TitleStyleConfig), "Issue title layout: config for '(<Test Config>) <test>', legacy for 'Test Failed: <test>'.")
	fs.BoolVar(&o.lenient, "lenient", false, "Fill missing required columns with N/A instead of aborting.")
	fs.BoolVar(&o.checkDuplicates, "check-duplicates", true, "Skip rows for which an open issue with the same title exists.")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Only report which issues would be created.")
	fs.StringVar(&o.tokenPath, "github-token-path", "", fmt.Sprintf("Path to a file holding the GitHub token. Defaults to the %s environment variable.", tokenEnv))
	fs.StringVar(&o.githubEndpoint, "github-endpoint", ghclient.DefaultEndpoint, "GitHub REST API endpoint.")
	fs.StringVar(&o.graphqlEndpoint, "github-graphql-endpoint", ghclient.DefaultGraphQLEndpoint, "GitHub GraphQL API endpoint.")
	fs.IntVar(&o.maxRetries, "max-retries", 0, "How often failed GitHub reads are retried. Writes are never retried.")
	fs.StringVar(&o.jiraEndpoint, "jira-endpoint", "", "Jira instance used to resolve the jira column into links. Disabled when empty.")
	fs.StringVar(&o.jiraTokenPath, "jira-token-path", "", "Path to a file holding the Jira token.")
	fs.StringVar(&o.slackChannel, "slack-channel", "", "Slack channel the run summary is posted to. Disabled when empty.")
	fs.StringVar(&o.slackTokenPath, "slack-token-path", "", "Path to the file containing the Slack token to use.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Level at which to log output.")
}

// complete fills in everything that was not given as a flag: the config
// file, positional arguments and secrets. Nothing here talks to the network.
func (o *options) complete(fs *pflag.FlagSet, args []string, getenv func(string) string) error {
	if o.configPath != "" {
		if err := o.applyConfigFile(fs); err != nil {
			return err
		}
	}

	switch len(args) {
	case 4:
		o.token = args[2]
		o.projectID = args[3]
	case 3:
		o.projectID = args[2]
	}
	if len(args) >= 2 {
		o.csvPath, o.repo = args[0], args[1]
	}
	o.org, o.repoName, _ = strings.Cut(o.repo, "/")

	var err error
	if o.token == "" && o.tokenPath != "" {
		if o.token, err = readSecret(o.tokenPath); err != nil {
			return err
		}
	}
	if o.token == "" {
		o.token = getenv(tokenEnv)
	}
	if o.jiraTokenPath != "" {
		if o.jiraToken, err = readSecret(o.jiraTokenPath); err != nil {
			return err
		}
	}
	if o.slackTokenPath != "" {
		if o.slackToken, err = readSecret(o.slackTokenPath); err != nil {
			return err
		}
	}
	return nil
}

func (o *options) applyConfigFile(fs *pflag.FlagSet) error {
	raw, err := os.ReadFile(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", o.configPath, err)
	}
	var config fileConfig
	if err := yaml.UnmarshalStrict(raw, &config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", o.configPath, err)
	}

	setString := func(flag string, target *string, value string) {
		if value != "" && !fs.Changed(flag) {
			*target = value
		}
	}
	setBool := func(flag string, target *bool, value *bool) {
		if value != nil && !fs.Changed(flag) {
			*target = *value
		}
	}
	setString("", &o.csvPath, config.CSVFile)
	setString("", &o.repo, config.Repo)
	setString("project-id", &o.projectID, config.ProjectID)
	setString("project-mode", &o.projectMode, config.ProjectMode)
	setString("docker-id", &o.dockerID, config.DockerID)
	setString("assignee", &o.assignee, config.Assignee)
	setBool("include-assignee", &o.includeAssignee, config.IncludeAssignee)
	setString("title-style", &o.titleStyle, config.TitleStyle)
	setBool("lenient", &o.lenient, config.Lenient)
	setBool("check-duplicates", &o.checkDuplicates, config.DuplicateCheck)
	setString("github-endpoint", &o.githubEndpoint, config.GitHubEndpoint)
	setString("github-graphql-endpoint", &o.graphqlEndpoint, config.GraphQLEndpoint)
	setString("jira-endpoint", &o.jiraEndpoint, config.JiraEndpoint)
	setString("slack-channel", &o.slackChannel, config.SlackChannel)
	if config.MaxRetries != nil && !fs.Changed("max-retries") {
		o.maxRetries = *config.MaxRetries
	}
	return nil
}

func readSecret(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (o *options) validate() error {
	var errs []error
	if o.csvPath == "" {
		errs = append(errs, errors.New("a CSV file is required"))
	}
	if o.org == "" || o.repoName == "" || strings.Contains(o.repoName, "/") {
		errs = append(errs, fmt.Errorf("repository must be given as org/repo, got %q", o.repo))
	}
	if o.token == "" {
		errs = append(errs, fmt.Errorf("a GitHub token is required: pass it as an argument, with --github-token-path or in %s", tokenEnv))
	}
	if !projectModes.Has(o.projectMode) {
		errs = append(errs, fmt.Errorf("--project-mode must be one of %s, got %q", strings.Join(sets.List(projectModes), ", "), o.projectMode))
	} else if o.projectMode != string(ghclient.ProjectModeNone) && o.projectID == "" {
		errs = append(errs, fmt.Errorf("a project ID is required with --project-mode=%s", o.projectMode))
	}
	if !titleStyles.Has(o.titleStyle) {
		errs = append(errs, fmt.Errorf("--title-style must be one of %s, got %q", strings.Join(sets.List(titleStyles), ", "), o.titleStyle))
	}
	if o.maxRetries < 0 {
		errs = append(errs, fmt.Errorf("--max-retries must not be negative, got %d", o.maxRetries))
	}
	if (o.slackChannel == "") != (o.slackTokenPath == "") {
		errs = append(errs, errors.New("--slack-channel and --slack-token-path must be given together"))
	}
	if _, err := logrus.ParseLevel(o.logLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid --log-level: %w", err))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *options) creatorConfig() issuecreator.Config {
	validation := failures.ValidationStrict
	if o.lenient {
		validation = failures.ValidationLenient
	}
	return issuecreator.Config{
		Org:             o.org,
		Repo:            o.repoName,
		ProjectID:       o.projectID,
		ProjectMode:     ghclient.ProjectMode(o.projectMode),
		DockerID:        o.dockerID,
		Assignee:        o.assignee,
		IncludeAssignee: o.includeAssignee,
		TitleStyle:      failures.TitleStyle(o.titleStyle),
		Validation:      validation,
		CheckDuplicates: o.checkDuplicates,
		DryRun:          o.dryRun,
	}
}

func newCommand(getenv func(string) string, run func(context.Context, *options) error) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "failure-issue-creator CSV_FILE ORG/REPO [TOKEN] [PROJECT_ID]",
		Short: "Create GitHub issues from a CSV file of test failures and add them to a project",
		Long: `Reads test failures from a CSV file with the columns "Failed test", "Arch" and
"Error message" (plus the optional "Track", "status", "Test Config", "jira" and
"assignee") and files one GitHub issue per row, skipping rows for which an open
issue with the same title already exists.

With three arguments the third is the project ID, with four the third is the
GitHub token and the fourth the project ID.`,
		Args:          cobra.RangeArgs(0, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return errors.New("expected both a CSV file and a repository")
			}
			if err := o.complete(cmd.Flags(), args, getenv); err != nil {
				return fmt.Errorf("invalid options: %w", err)
			}
			if err := o.validate(); err != nil {
				return fmt.Errorf("invalid options: %w", err)
			}
			return run(cmd.Context(), o)
		},
	}
	o.bindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, o *options) error {
	level, _ := logrus.ParseLevel(o.logLevel)
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&censoringFormatter{delegate: new(logrus.TextFormatter), secrets: []string{o.token, o.jiraToken, o.slackToken}})

	file, err := os.Open(o.csvPath)
	if err != nil {
		return fmt.Errorf("could not open CSV file: %w", err)
	}
	defer file.Close()
	reader, err := failures.NewReader(file)
	if err != nil {
		return err
	}

	client := ghclient.NewClient(ctx,
		ghclient.WithToken(o.token),
		ghclient.WithEndpoints(o.githubEndpoint, o.graphqlEndpoint),
		ghclient.WithMaxRetries(o.maxRetries),
	)
	var creatorOpts []issuecreator.Option
	if o.jiraEndpoint != "" {
		resolver, err := jira.NewResolver(ctx, o.jiraEndpoint, o.jiraToken)
		if err != nil {
			return err
		}
		creatorOpts = append(creatorOpts, issuecreator.WithJiraResolver(resolver))
	}

	logger := logrus.WithFields(logrus.Fields{"repo": o.repo, "csv": o.csvPath})
	if o.dryRun {
		logger.Info("Running in dry-run mode, no issues will be created.")
	}
	creatorOpts = append(creatorOpts, issuecreator.WithLogger(logger))
	result, runErr := issuecreator.New(client, o.creatorConfig(), creatorOpts...).Run(ctx, reader)
	logger.WithFields(logrus.Fields{
		"rows":        result.Rows,
		"created":     result.Created,
		"planned":     result.Planned,
		"skipped":     result.Skipped,
		"linked":      result.Linked,
		"link-failed": result.LinkFailed,
	}).Info("Finished processing CSV file.")

	if o.slackChannel != "" {
		if err := slack.NewNotifier(o.slackToken, o.slackChannel).PostSummary(o.repo, result, runErr); err != nil {
			logger.WithError(err).Warn("Could not post run summary to Slack.")
		}
	}
	return runErr
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newCommand(os.Getenv, run).ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to create issues from CSV file.")
	}
}
