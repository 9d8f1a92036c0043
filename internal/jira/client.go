// Package jira writes planning poker results back to JIRA issues.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	jira "github.com/andygrunwald/go-jira"
	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/logging"
)

// Client handles interactions with the JIRA API
type Client struct {
	client        *jira.Client
	estimateField string
}

// NewClient creates a new JIRA client from the JIRA configuration.
func NewClient(cfg config.JiraConfig) (*Client, error) {
	if err := config.ValidateJiraConfig(&config.Config{Jira: cfg}); err != nil {
		return nil, err
	}
	if cfg.EstimateField == "" {
		return nil, fmt.Errorf("JIRA estimate field is not configured")
	}

	tp := jira.BasicAuthTransport{
		Username: cfg.Username,
		Password: cfg.Token,
	}

	client, err := jira.NewClient(tp.Client(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	logging.Info("jira configuration",
		"url", cfg.URL,
		"username", cfg.Username,
		"token", logging.MaskSensitive(cfg.Token),
		"estimate_field", cfg.EstimateField)

	return &Client{
		client:        client,
		estimateField: cfg.EstimateField,
	}, nil
}

// IssueExists reports whether the issue key resolves to a visible JIRA issue.
func (c *Client) IssueExists(ctx context.Context, issueKey string) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("JIRA client not initialized")
	}

	_, resp, err := c.client.Issue.GetWithContext(ctx, issueKey, &jira.GetQueryOptions{Fields: "summary"})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get jira issue %s: %v", issueKey, err)
	}
	return true, nil
}

// WriteEstimate sets the estimate custom field of the issue and leaves a
// comment recording the applied value.
func (c *Client) WriteEstimate(ctx context.Context, issueKey string, value float64) error {
	if c.client == nil {
		return fmt.Errorf("JIRA client not initialized")
	}

	data := map[string]interface{}{
		"fields": map[string]interface{}{
			c.estimateField: value,
		},
	}

	resp, err := c.client.Issue.UpdateIssueWithContext(ctx, issueKey, data)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		logging.Error("failed to update jira estimate",
			"key", issueKey,
			"field", c.estimateField,
			"status_code", status,
			"error", err)
		return fmt.Errorf("failed to update estimate of %s: %v (status: %d)", issueKey, err, status)
	}

	comment := &jira.Comment{
		Body: fmt.Sprintf("Planning poker estimate applied: %s", strconv.FormatFloat(value, 'f', -1, 64)),
	}
	if _, _, err := c.client.Issue.AddCommentWithContext(ctx, issueKey, comment); err != nil {
		// The field is already updated; a missing comment is not worth failing over
		logging.Warn("failed to comment on jira issue",
			"key", issueKey,
			"error", err)
	}

	logging.Info("estimate written to jira",
		"key", issueKey,
		"field", c.estimateField,
		"value", value)
	return nil
}
