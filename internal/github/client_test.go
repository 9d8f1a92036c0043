package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/google/go-github/v41/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubDomainToAPIURL(t *testing.T) {
	testCases := []struct {
		name           string
		domain         string
		expectedAPIURL string
	}{
		{name: "Default GitHub.com", domain: "github.com", expectedAPIURL: "https://api.github.com/"},
		{name: "GitHub Enterprise", domain: "github.example.com", expectedAPIURL: "https://github.example.com/api/v3/"},
		{name: "Empty Domain (should default to github.com)", domain: "", expectedAPIURL: "https://api.github.com/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := apiURL(tc.domain)
			assert.Equal(t, tc.expectedAPIURL, got)

			_, err := url.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestParseKeyFromTitle(t *testing.T) {
	testCases := []struct {
		title    string
		expected string
	}{
		{title: "[PROJ-123] Login page", expected: "PROJ-123"},
		{title: "Login page [PROJ-123]", expected: ""},
		{title: "[ABC-1]", expected: "ABC-1"},
		{title: "No key", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseKeyFromTitle(tc.title))
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.GitHubConfig{Repository: "org/repo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")

	client, err := NewClient(config.GitHubConfig{Token: "t", Domain: "github.example.com", Repository: "org/repo"})
	require.NoError(t, err)
	assert.Equal(t, "https://github.example.com/api/v3/", client.client.BaseURL.String())
	assert.Equal(t, "org", client.owner)
	assert.Equal(t, "repo", client.repo)
}

type fakeGitHub struct {
	mu      sync.Mutex
	added   []string
	removed []string
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/repos/org/repo/issues":
		fmt.Fprint(w, `[
			{"number": 7, "title": "[PROJ-123] Login page", "pull_request": {"url": "https://example/pr/7"}},
			{"number": 8, "title": "[PROJ-123] Login page"},
			{"number": 9, "title": "[PROJ-999] Other"}
		]`)
	case r.Method == http.MethodGet && r.URL.Path == "/repos/org/repo/issues/8/labels":
		fmt.Fprint(w, `[{"name": "story"}, {"name": "estimate: 3"}]`)
	case r.Method == http.MethodDelete && r.URL.Path == "/repos/org/repo/issues/8/labels/estimate: 3":
		f.removed = append(f.removed, "estimate: 3")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `[]`)
	case r.Method == http.MethodPost && r.URL.Path == "/repos/org/repo/issues/8/labels":
		var labels []string
		json.NewDecoder(r.Body).Decode(&labels)
		f.added = append(f.added, labels...)
		fmt.Fprint(w, `[]`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base
	return &Client{client: gh, owner: "org", repo: "repo"}
}

func TestWriteEstimateReplacesLabel(t *testing.T) {
	fake := &fakeGitHub{}
	client := newTestClient(t, fake)

	number, err := client.FindIssue(context.Background(), "PROJ-123")
	require.NoError(t, err)
	assert.Equal(t, 8, number)

	require.NoError(t, client.WriteEstimate(context.Background(), "PROJ-123", 5))
	assert.Equal(t, []string{"estimate: 3"}, fake.removed)
	assert.Equal(t, []string{"estimate: 5"}, fake.added)
}

func TestWriteEstimateWithoutLinkedIssue(t *testing.T) {
	fake := &fakeGitHub{}
	client := newTestClient(t, fake)

	require.NoError(t, client.WriteEstimate(context.Background(), "PROJ-404", 1))
	assert.Empty(t, fake.added)
}
