package github

import (
	"context"
	"fmt"

	githubql "github.com/shurcooL/githubv4"
)

// ProjectMode selects which generation of the GitHub projects API issues are
// linked through. The two generations do not interoperate.
type ProjectMode string

const (
	ProjectModeNone ProjectMode = "none"
	// ProjectModeV2 links issues as items of a (new style) project.
	ProjectModeV2 ProjectMode = "v2"
	// ProjectModeCard adds issues as cards to a column of a classic project.
	ProjectModeCard ProjectMode = "card"
)

// AddProjectV2ItemByIdInput is the input of the addProjectV2ItemById mutation.
// The type name is sent verbatim as the GraphQL input type.
type AddProjectV2ItemByIdInput struct {
	ProjectID githubql.ID `json:"projectId"`
	ContentID githubql.ID `json:"contentId"`
}

// AddProjectV2Item adds the issue or pull request with the given node ID to a
// project and returns the ID of the new project item.
func (c *Client) AddProjectV2Item(ctx context.Context, projectID, contentID string) (string, error) {
	var m struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID githubql.ID
			}
		} `graphql:"addProjectV2ItemById(input: $input)"`
	}
	input := AddProjectV2ItemByIdInput{
		ProjectID: githubql.ID(projectID),
		ContentID: githubql.ID(contentID),
	}
	if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
		return "", fmt.Errorf("failed to add %s to project %s: %w", contentID, projectID, err)
	}
	return fmt.Sprint(m.AddProjectV2ItemByID.Item.ID), nil
}

// AddProjectCard adds the issue with the given node ID as a card to a column
// of a classic project and returns the ID of the card.
func (c *Client) AddProjectCard(ctx context.Context, columnID, contentID string) (string, error) {
	var m struct {
		AddProjectCard struct {
			CardEdge struct {
				Node struct {
					ID githubql.ID
				}
			}
		} `graphql:"addProjectCard(input: $input)"`
	}
	input := githubql.AddProjectCardInput{
		ProjectColumnID: githubql.ID(columnID),
		ContentID:       githubql.NewID(githubql.ID(contentID)),
	}
	if err := c.graphql.Mutate(ctx, &m, input, nil); err != nil {
		return "", fmt.Errorf("failed to add %s to project column %s: %w", contentID, columnID, err)
	}
	return fmt.Sprint(m.AddProjectCard.CardEdge.Node.ID), nil
}
