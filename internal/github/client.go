// Package github mirrors applied planning poker estimates onto GitHub issues.
//
// Issues are linked to their work item by a title prefix such as
// "[PROJ-123] Login page", the convention used when GitHub issues are
// synchronized into JIRA.
package github

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/logging"
	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"
)

// EstimateLabelPrefix starts every estimate label, e.g. "estimate: 5".
const EstimateLabelPrefix = "estimate: "

var titleKeyPattern = regexp.MustCompile(`^\[([\w\-]+)\]`)

// Client encapsulates the GitHub API client.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// apiURL returns the REST endpoint for a GitHub domain.
func apiURL(domain string) string {
	if domain == "" || domain == "github.com" {
		return "https://api.github.com/"
	}
	return fmt.Sprintf("https://%s/api/v3/", domain)
}

// NewClient creates a GitHub API client for the configured repository.
func NewClient(cfg config.GitHubConfig) (*Client, error) {
	if err := config.ValidateGitHubConfig(&config.Config{GitHub: cfg}); err != nil {
		return nil, err
	}
	owner, repo, _ := strings.Cut(cfg.Repository, "/")

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	client := github.NewClient(tc)
	if cfg.Domain != "" && cfg.Domain != "github.com" {
		parsedURL, err := url.Parse(apiURL(cfg.Domain))
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = parsedURL
		client.UploadURL = parsedURL
	}

	logging.Info("github configuration",
		"domain", cfg.Domain,
		"api_url", apiURL(cfg.Domain),
		"repository", cfg.Repository,
		"token", logging.MaskSensitive(cfg.Token))

	return &Client{client: client, owner: owner, repo: repo}, nil
}

// ParseKeyFromTitle extracts a work item key from an issue title.
// It looks for a pattern like "[PROJ-123] Issue title" and returns "PROJ-123".
// If no key is found, it returns an empty string.
func ParseKeyFromTitle(title string) string {
	matches := titleKeyPattern.FindStringSubmatch(title)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// FindIssue returns the number of the issue linked to issueKey, or 0.
// Pull requests are skipped.
func (c *Client) FindIssue(ctx context.Context, issueKey string) (int, error) {
	opts := &github.IssueListByRepoOptions{
		State: "all",
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	for {
		issues, resp, err := c.client.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch GitHub issues: %v", err)
		}

		for _, issue := range issues {
			if issue.PullRequestLinks != nil {
				continue
			}
			if ParseKeyFromTitle(issue.GetTitle()) == issueKey {
				return issue.GetNumber(), nil
			}
		}

		if resp.NextPage == 0 {
			return 0, nil
		}
		opts.Page = resp.NextPage
	}
}

// WriteEstimate replaces any estimate label on the linked issue with one for value.
// A work item without a linked GitHub issue is skipped.
func (c *Client) WriteEstimate(ctx context.Context, issueKey string, value float64) error {
	number, err := c.FindIssue(ctx, issueKey)
	if err != nil {
		return err
	}
	if number == 0 {
		logging.Debug("no github issue linked to work item", "key", issueKey)
		return nil
	}

	labels, _, err := c.client.Issues.ListLabelsByIssue(ctx, c.owner, c.repo, number, nil)
	if err != nil {
		return fmt.Errorf("failed to retrieve labels for issue %s#%d: %v", c.repo, number, err)
	}
	for _, label := range labels {
		if name := label.GetName(); strings.HasPrefix(name, EstimateLabelPrefix) {
			if _, err := c.client.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, name); err != nil {
				return fmt.Errorf("failed to remove label %q from issue %s#%d: %v", name, c.repo, number, err)
			}
		}
	}

	label := EstimateLabelPrefix + strconv.FormatFloat(value, 'f', -1, 64)
	if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, []string{label}); err != nil {
		return fmt.Errorf("failed to add labels to issue %s#%d: %v", c.repo, number, err)
	}

	logging.Info("estimate mirrored to github",
		"key", issueKey,
		"issue_number", number,
		"label", label)
	return nil
}
