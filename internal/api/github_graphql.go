package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/wesm/collabhub/internal/models"
)

const defaultRESTBase = "https://api.github.com/"

// GraphQLClient represents a client for the GitHub GraphQL API
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a GraphQL client sharing the REST client's
// transport. restBase selects the endpoint: the public API, or the GraphQL
// endpoint next to an overridden REST base.
func NewGraphQLClient(httpClient *http.Client, restBase string) *GraphQLClient {
	if restBase == "" || restBase == defaultRESTBase {
		return &GraphQLClient{client: githubv4.NewClient(httpClient)}
	}
	return &GraphQLClient{client: githubv4.NewEnterpriseClient(graphQLEndpoint(restBase), httpClient)}
}

// graphQLEndpoint maps a REST base to its GraphQL endpoint. GitHub
// Enterprise serves REST under /api/v3/ and GraphQL under /api/graphql.
func graphQLEndpoint(restBase string) string {
	if !strings.HasSuffix(restBase, "/") {
		restBase += "/"
	}
	if strings.HasSuffix(restBase, "/api/v3/") {
		return strings.TrimSuffix(restBase, "v3/") + "graphql"
	}
	return restBase + "graphql"
}

// pullRequestStates maps a REST list state to GraphQL states; nil means all
func pullRequestStates(state string) []githubv4.PullRequestState {
	switch state {
	case "open":
		return []githubv4.PullRequestState{githubv4.PullRequestStateOpen}
	case "closed":
		return []githubv4.PullRequestState{githubv4.PullRequestStateClosed, githubv4.PullRequestStateMerged}
	default:
		return nil
	}
}

// PullRequestStats fetches change statistics for the most recently updated
// pull requests of a repository, keyed by pull request number. The REST list
// endpoint does not report them.
func (c *GraphQLClient) PullRequestStats(ctx context.Context, owner, name, state string, first int) (map[int]models.ChangeStats, error) {
	if first <= 0 || first > 100 {
		first = 100
	}

	var query struct {
		RateLimit struct {
			Limit     githubv4.Int
			Remaining githubv4.Int
			ResetAt   githubv4.DateTime
		}
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number       githubv4.Int
					Additions    githubv4.Int
					Deletions    githubv4.Int
					ChangedFiles githubv4.Int
				}
			} `graphql:"pullRequests(first: $first, states: $states, orderBy: {field: UPDATED_AT, direction: DESC})"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(name),
		"first":  githubv4.Int(first),
		"states": pullRequestStates(state),
	}

	if err := c.client.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query pull request stats: %w", err)
	}

	// Check rate limit and log
	remaining := int(query.RateLimit.Remaining)
	if remaining > 0 && remaining < 1000 {
		log.Printf("GraphQL rate limit status: %d/%d remaining, resets at %s",
			remaining, int(query.RateLimit.Limit), query.RateLimit.ResetAt.Format(time.RFC3339))
	}

	stats := make(map[int]models.ChangeStats, len(query.Repository.PullRequests.Nodes))
	for _, node := range query.Repository.PullRequests.Nodes {
		stats[int(node.Number)] = models.ChangeStats{
			Additions:    int(node.Additions),
			Deletions:    int(node.Deletions),
			ChangedFiles: int(node.ChangedFiles),
		}
	}
	return stats, nil
}
