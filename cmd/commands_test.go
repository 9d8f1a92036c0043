package cmd

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/server"
	"github.com/danielolaszy/poker/internal/session"
	"github.com/danielolaszy/poker/internal/store"
	"github.com/danielolaszy/poker/pkg/models"
)

func startServer(t *testing.T) string {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "poker.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := session.NewService(repo, models.DefaultCards, time.Hour)
	srv, err := server.New(svc, config.ServerConfig{CSRFKey: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	t.Setenv("POKER_URL", startServer(t))
	t.Setenv("POKER_TOKEN", "")

	steps := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "Start",
			args:     []string{"start", "PROJ-1", "--user", "alice"},
			expected: []string{"Session for PROJ-1 is open"},
		},
		{
			name:     "Creator votes",
			args:     []string{"vote", "PROJ-1", "5", "--user", "alice", "--comment", "small change"},
			expected: []string{"[success] Vote Submitted: Your vote has been recorded!"},
		},
		{
			name:     "Second voter",
			args:     []string{"vote", "PROJ-1", "8", "--user", "bob", "--comment", ""},
			expected: []string{"[success] Vote Submitted"},
		},
		{
			name:     "Voters while open",
			args:     []string{"votes", "PROJ-1", "--user", "bob"},
			expected: []string{"Session PROJ-1 is open", "Voted:  alice, bob", "[8]"},
		},
		{
			name:     "Voter list",
			args:     []string{"voters", "PROJ-1", "--user", "carol"},
			expected: []string{"Voted on PROJ-1: alice, bob"},
		},
		{
			name:     "End shows results",
			args:     []string{"end", "PROJ-1", "--user", "alice", "--yes"},
			expected: []string{"Session PROJ-1 is ended", "small change", "average 6.5 over 2 votes", "Estimates to apply: 5, 8"},
		},
		{
			name:     "Results after end",
			args:     []string{"results", "PROJ-1", "--user", "alice"},
			expected: []string{"Votes on PROJ-1", "small change", "average 6.5 over 2 votes", "Estimates to apply: 5, 8"},
		},
		{
			name:     "Apply estimate",
			args:     []string{"apply", "PROJ-1", "8", "--user", "alice"},
			expected: []string{"Estimate 8 applied to issue!"},
		},
		{
			name:     "Final estimate",
			args:     []string{"votes", "PROJ-1", "--user", "bob"},
			expected: []string{"Final estimate: 8"},
		},
	}

	for _, step := range steps {
		out, err := execute(t, step.args...)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v\n%s", step.name, err, out)
		}
		for _, want := range step.expected {
			if !strings.Contains(out, want) {
				t.Errorf("%s: expected output to contain %q, got:\n%s", step.name, want, out)
			}
		}
	}
}

func TestVoteWithoutSession(t *testing.T) {
	t.Setenv("POKER_URL", startServer(t))

	_, err := execute(t, "vote", "PROJ-2", "5", "--user", "alice", "--comment", "")
	if err == nil || !strings.Contains(err.Error(), "poker start PROJ-2") {
		t.Errorf("Expected a hint to start the session, got %v", err)
	}
}

func TestEndByOtherVoter(t *testing.T) {
	t.Setenv("POKER_URL", startServer(t))

	if _, err := execute(t, "start", "PROJ-3", "--user", "alice"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	_, err := execute(t, "end", "PROJ-3", "--user", "bob", "--yes")
	if err == nil || !strings.Contains(err.Error(), "only be ended by its creator") {
		t.Errorf("Expected creator error, got %v", err)
	}
}

func TestResultsOfOpenSession(t *testing.T) {
	t.Setenv("POKER_URL", startServer(t))

	if _, err := execute(t, "start", "PROJ-4", "--user", "alice"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out, err := execute(t, "voters", "PROJ-4", "--user", "alice")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "Nobody has voted on PROJ-4 yet") {
		t.Errorf("Expected empty voter list, got:\n%s", out)
	}

	_, err = execute(t, "results", "PROJ-4", "--user", "alice")
	if err == nil || !strings.Contains(err.Error(), "hasn't ended yet") {
		t.Errorf("Expected hidden votes error, got %v", err)
	}
}
