package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielolaszy/poker/internal/config"
	"github.com/danielolaszy/poker/internal/poker"
	"github.com/danielolaszy/poker/internal/session"
	"github.com/danielolaszy/poker/internal/store"
	"github.com/danielolaszy/poker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSRFKey = "0123456789abcdef0123456789abcdef"

type recordingWriter struct {
	mu     sync.Mutex
	writes map[string]float64
}

func (w *recordingWriter) WriteEstimate(ctx context.Context, issueKey string, value float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = make(map[string]float64)
	}
	w.writes[issueKey] = value
	return nil
}

type notes struct {
	mu  sync.Mutex
	all []poker.Notification
}

func (n *notes) Notify(note poker.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, note)
}

func (n *notes) last(t *testing.T) poker.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.all)
	return n.all[len(n.all)-1]
}

type testEnv struct {
	svc    *session.Service
	writer *recordingWriter
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "poker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	writer := &recordingWriter{}
	svc := session.NewService(repo, models.DefaultCards, time.Hour, session.WithEstimateWriter(writer))
	srv, err := New(svc, config.ServerConfig{
		CSRFKey: testCSRFKey,
		Users:   map[string]string{"alice": "pw-a", "bob": "pw-b"},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{svc: svc, writer: writer, url: ts.URL}
}

// voter is one user's browser: a host page, its window and the inline widget.
type voter struct {
	transport *poker.Transport
	window    *poker.PageWindow
	client    *poker.Client
	inline    *poker.InlineController
	notes     *notes
}

func (e *testEnv) open(t *testing.T, user, password, key string) *voter {
	t.Helper()
	page, err := poker.NewPage(`<html><body></body></html>`)
	require.NoError(t, err)
	tr, err := poker.NewTransport(e.url, user, password, poker.WithTokenSource(page))
	require.NoError(t, err)

	window := poker.NewPageWindow(page, func(ctx context.Context) (string, error) {
		return tr.FetchPage(ctx, key)
	})
	n := &notes{}
	client := poker.NewClient(tr, n, window,
		poker.WithConfirmer(poker.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })),
		poker.WithAfterFunc(func(_ time.Duration, fn func()) { fn() }),
	)
	inline := poker.NewInlineController(client, page)
	window.OnLoad(inline.InitInstantPoker)
	require.NoError(t, window.Reload(context.Background()))

	return &voter{transport: tr, window: window, client: client, inline: inline, notes: n}
}

func TestInlineSessionEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alice := env.open(t, "alice", "pw-a", "PROJ-1")
	assert.Nil(t, alice.inline.Live())
	assert.Contains(t, alice.window.Page().View("body").Snapshot().Message, "no planning poker session")

	require.NoError(t, alice.transport.CreateSession(ctx, poker.CreateSessionRequest{IssueKey: "PROJ-1"}))
	require.NoError(t, alice.window.Reload(ctx))

	b := alice.inline.Live()
	require.NotNil(t, b)
	snap := b.View().Snapshot()
	assert.True(t, snap.Instant)
	assert.True(t, snap.Creator)
	assert.Equal(t, "open", snap.State)
	assert.False(t, snap.EndSessionVisible)

	require.NoError(t, b.SetComment("looks small"))
	require.NoError(t, b.ClickCard(ctx, "5"))
	assert.Equal(t, "Vote Submitted", alice.notes.last(t).Title)
	_, visible := b.View().EndSessionControl()
	assert.True(t, visible)

	bob := env.open(t, "bob", "pw-b", "PROJ-1")
	bobBinding := bob.inline.Live()
	require.NotNil(t, bobBinding)
	assert.False(t, bobBinding.View().Creator())
	require.NoError(t, bobBinding.ClickCard(ctx, "8"))

	require.NoError(t, b.ClickEndSession(ctx))
	assert.True(t, b.Disposed())
	results := alice.inline.Live()
	require.NotNil(t, results)
	snap = results.View().Snapshot()
	assert.Equal(t, "ended", snap.State)
	assert.ElementsMatch(t, []string{"5", "8"}, snap.Estimates)
	assert.Equal(t, 2, snap.Stats.Count)
	assert.InDelta(t, 6.5, snap.Stats.Average, 0.001)
	require.Len(t, snap.Results, 2)
	assert.Contains(t, snap.Results, poker.Result{Voter: "alice", Value: "5", Comment: "looks small"})

	require.NoError(t, results.ClickApplyEstimate(ctx, "8"))
	assert.Equal(t, "Estimate 8 applied to issue!", alice.notes.last(t).Body)
	assert.Equal(t, 8.0, env.writer.writes["PROJ-1"])

	final := alice.inline.Live()
	require.NotNil(t, final)
	assert.Equal(t, "8", final.View().Snapshot().FinalEstimate)
	assert.Empty(t, final.View().EstimateValues())
}

func TestVoteRejectedRestoresCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.FindOrCreate(ctx, "PROJ-2", "alice")
	require.NoError(t, err)

	alice := env.open(t, "alice", "pw-a", "PROJ-2")
	b := alice.inline.Live()
	require.NotNil(t, b)

	// The session ends while the page still shows the vote form.
	require.NoError(t, env.svc.End(ctx, "PROJ-2", "alice"))

	err = b.ClickCard(ctx, "3")
	var se *poker.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "Failed to submit vote: "+session.ErrEnded.Error(), alice.notes.last(t).Body)
	for _, c := range b.View().Cards() {
		assert.False(t, c.Active, c.Value)
	}
}

func TestStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.FindOrCreate(ctx, "PROJ-3", "alice")
	require.NoError(t, err)

	alice := env.open(t, "alice", "pw-a", "PROJ-3")
	bob := env.open(t, "bob", "pw-b", "PROJ-3")

	testCases := []struct {
		name           string
		call           func() error
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "Vote for a card outside the set",
			call: func() error {
				return alice.transport.PostAction(ctx, poker.ActionRequest{IssueKey: "PROJ-3", Action: poker.ActionVote, Value: "4"})
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   session.ErrInvalidVote.Error(),
		},
		{
			name: "End by someone else",
			call: func() error {
				return bob.transport.PostAction(ctx, poker.ActionRequest{IssueKey: "PROJ-3", Action: poker.ActionEndSession})
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   session.ErrNotCreator.Error(),
		},
		{
			name: "Apply before the end",
			call: func() error {
				return alice.transport.PostAction(ctx, poker.ActionRequest{IssueKey: "PROJ-3", Action: poker.ActionApplyEstimate, FinalValue: "5"})
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   session.ErrNotEnded.Error(),
		},
		{
			name: "Votes of an open session",
			call: func() error {
				_, err := alice.transport.FetchVotes(ctx, "PROJ-3")
				return err
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   session.ErrVotesHidden.Error(),
		},
		{
			name: "Fragment of an unknown session",
			call: func() error {
				_, err := alice.transport.FetchFragment(ctx, poker.FragmentRequest{IssueKey: "PROJ-404"})
				return err
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   session.ErrNotFound.Error(),
		},
		{
			name: "Malformed key",
			call: func() error {
				return alice.transport.CreateSession(ctx, poker.CreateSessionRequest{IssueKey: "proj 3"})
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   session.ErrInvalidKey.Error(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var se *poker.ServerError
			require.ErrorAs(t, tc.call(), &se)
			assert.Equal(t, tc.expectedStatus, se.Status)
			assert.Equal(t, tc.expectedBody, se.Body)
		})
	}
}

func TestAnonymousCannotCreate(t *testing.T) {
	env := newTestEnv(t)
	anon := env.open(t, "", "", "PROJ-4")

	err := anon.transport.CreateSession(context.Background(), poker.CreateSessionRequest{IssueKey: "PROJ-4"})
	var se *poker.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, session.ErrNotLoggedIn.Error(), se.Body)
}

func TestWrongPasswordRejected(t *testing.T) {
	env := newTestEnv(t)
	tr, err := poker.NewTransport(env.url, "alice", "nope")
	require.NoError(t, err)

	_, err = tr.FetchPage(context.Background(), "PROJ-1")
	var se *poker.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestPostWithoutTokenIsForbidden(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.PostForm(env.url+models.PathVote, url.Values{"key": {"PROJ-1"}, "voteVal": {"5"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), "session token is invalid")
}

func TestFetchDoesNotRestartEndedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.FindOrCreate(ctx, "PROJ-5", "alice")
	require.NoError(t, err)
	require.NoError(t, env.svc.End(ctx, "PROJ-5", "alice"))

	alice := env.open(t, "alice", "pw-a", "PROJ-5")
	for _, kind := range []poker.FragmentKind{poker.FragmentVoteForm, poker.FragmentInstant} {
		body, err := alice.transport.FetchFragment(ctx, poker.FragmentRequest{IssueKey: "PROJ-5", Kind: kind})
		require.NoError(t, err)
		assert.Contains(t, body, `data-state="ended"`)
		assert.Contains(t, body, `class="results"`)
	}

	require.NoError(t, alice.transport.CreateSession(ctx, poker.CreateSessionRequest{IssueKey: "PROJ-5"}))
	sess, err := env.svc.Get(ctx, "PROJ-5")
	require.NoError(t, err)
	assert.Equal(t, models.StateOpen, sess.StateAt(time.Now()))
}

func TestViewVoters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.FindOrCreate(ctx, "PROJ-6", "alice")
	require.NoError(t, err)
	require.NoError(t, env.svc.Vote(ctx, "PROJ-6", "bob", "13", "big"))

	alice := env.open(t, "alice", "pw-a", "PROJ-6")
	body, err := alice.transport.FetchVoters(ctx, "PROJ-6")
	require.NoError(t, err)
	assert.Contains(t, body, "<li>bob</li>")
	assert.NotContains(t, body, "13")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, "ok", mustGet(t, env.url+"/health"))
}

func TestNewRejectsShortCSRFKey(t *testing.T) {
	_, err := New(nil, config.ServerConfig{CSRFKey: "short"})
	assert.Error(t, err)
}

func mustGet(t *testing.T, u string) string {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestWidgetPrefillsOwnVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.FindOrCreate(ctx, "PROJ-8", "alice")
	require.NoError(t, err)
	require.NoError(t, env.svc.Vote(ctx, "PROJ-8", "bob", "13", "big"))
	require.NoError(t, env.svc.Vote(ctx, "PROJ-8", "alice", "3", "small"))

	testCases := []struct {
		name            string
		user            string
		password        string
		expectedActive  string
		expectedComment string
	}{
		{name: "Creator", user: "alice", password: "pw-a", expectedActive: "3", expectedComment: "small"},
		{name: "Other voter", user: "bob", password: "pw-b", expectedActive: "13", expectedComment: "big"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := env.open(t, tc.user, tc.password, "PROJ-8")
			b := v.inline.Live()
			require.NotNil(t, b)

			snap := b.View().Snapshot()
			var active []string
			for _, c := range snap.Cards {
				if c.Active {
					active = append(active, c.Value)
				}
			}
			assert.Equal(t, []string{tc.expectedActive}, active)
			assert.Equal(t, tc.expectedComment, snap.Comment)
			assert.ElementsMatch(t, []string{"alice", "bob"}, snap.Voters)
		})
	}
}
