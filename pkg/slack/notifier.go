package slack

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/openshift/failure-issue-creator/pkg/issuecreator"
)

type messagePoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts a digest of a finished batch to a Slack channel.
type Notifier struct {
	client  messagePoster
	channel string
}

func NewNotifier(token, channel string) *Notifier {
	return &Notifier{client: slack.New(token), channel: channel}
}

// PostSummary reports the outcome of a batch against repo. runErr is the
// error that aborted the batch, if any.
func (n *Notifier) PostSummary(repo string, result issuecreator.Result, runErr error) error {
	text := summary(repo, result, runErr)
	blocks := []slack.Block{
		&slack.SectionBlock{
			Type: slack.MBTSection,
			Text: &slack.TextBlockObject{
				Type: slack.MarkdownType,
				Text: text,
			},
		},
	}
	if _, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false), slack.MsgOptionBlocks(blocks...)); err != nil {
		return fmt.Errorf("failed to post summary to channel %s: %w", n.channel, err)
	}
	return nil
}

func summary(repo string, result issuecreator.Result, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Test failure issues for %s*: %d rows, %d created, %d skipped as duplicates", repo, result.Rows, result.Created, result.Skipped)
	if result.Planned > 0 {
		fmt.Fprintf(&b, ", %d planned (dry run)", result.Planned)
	}
	if result.Linked > 0 || result.LinkFailed > 0 {
		fmt.Fprintf(&b, ", %d linked to the project, %d not linked", result.Linked, result.LinkFailed)
	}
	b.WriteString("\n")
	for _, url := range result.Issues {
		fmt.Fprintf(&b, "• <%s>\n", url)
	}
	if runErr != nil {
		fmt.Fprintf(&b, ":warning: The run was aborted: %v\n", runErr)
	}
	return b.String()
}
