package poker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/pkg/models"
)

const maxResponseBytes = 1 << 20

// Transport is the HTTPClient speaking the form-post protocol of the server.
type Transport struct {
	baseURL  *url.URL
	client   *http.Client
	username string
	password string
	tokens   TokenSource
	log      *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the underlying http.Client. It should keep a cookie
// jar, since the anti-forgery token is paired with a cookie.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) { t.client = c }
}

// WithTokenSource sets where mutating requests read their anti-forgery token.
func WithTokenSource(ts TokenSource) TransportOption {
	return func(t *Transport) { t.tokens = ts }
}

// NewTransport creates a Transport for the server at baseURL. A non-empty
// username enables basic authentication.
func NewTransport(baseURL, username, password string, opts ...TransportOption) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url: %q", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		baseURL:  u,
		client:   &http.Client{Jar: jar, Timeout: 30 * time.Second},
		username: username,
		password: password,
		log:      logging.With("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// CreateSession creates or reuses the session of an issue.
func (t *Transport) CreateSession(ctx context.Context, req CreateSessionRequest) error {
	form := url.Values{"key": {req.IssueKey}}
	_, err := t.do(ctx, http.MethodPost, models.PathInstantPoker, form, true)
	return err
}

// FetchFragment returns the rendered session state of an issue.
func (t *Transport) FetchFragment(ctx context.Context, req FragmentRequest) (string, error) {
	path := models.PathVoteForm
	if req.Kind == FragmentInstant {
		path = models.PathInstantPoker
	}
	form := url.Values{"key": {req.IssueKey}, "instant": {"true"}}
	return t.do(ctx, http.MethodGet, path, form, false)
}

// PostAction sends a state-changing action.
func (t *Transport) PostAction(ctx context.Context, req ActionRequest) error {
	form := url.Values{
		"key":    {req.IssueKey},
		"action": {string(req.Action)},
	}
	switch req.Action {
	case ActionVote:
		form.Set("voteVal", req.Value)
		form.Set("voteComment", req.Comment)
	case ActionApplyEstimate:
		form.Set("finalValue", req.FinalValue)
	}
	_, err := t.do(ctx, http.MethodPost, models.PathVote, form, true)
	return err
}

// FetchPage returns the host page of an issue.
func (t *Transport) FetchPage(ctx context.Context, issueKey string) (string, error) {
	return t.do(ctx, http.MethodGet, models.PathBrowse+url.PathEscape(issueKey), nil, false)
}

// FetchVotes returns the rendered votes of an ended session.
func (t *Transport) FetchVotes(ctx context.Context, issueKey string) (string, error) {
	return t.do(ctx, http.MethodGet, models.PathViewVotes, url.Values{"key": {issueKey}}, false)
}

// FetchVoters returns the rendered list of users who have voted.
func (t *Transport) FetchVoters(ctx context.Context, issueKey string) (string, error) {
	return t.do(ctx, http.MethodGet, models.PathViewVoters, url.Values{"key": {issueKey}}, false)
}

func (t *Transport) do(ctx context.Context, method, path string, form url.Values, mutating bool) (string, error) {
	if form == nil {
		form = url.Values{}
	}
	if mutating {
		if t.tokens == nil {
			return "", ErrNoToken
		}
		token, err := t.tokens.Token()
		if err != nil {
			return "", err
		}
		form.Set(models.TokenField, token)
	}

	endpoint := *t.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path

	var body io.Reader
	if method == http.MethodGet {
		endpoint.RawQuery = form.Encode()
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	t.log.Debug("sending request", "method", method, "path", path, "key", form.Get("key"))
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	t.log.Debug("received response", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(data))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ServerError{Status: resp.StatusCode, Body: string(data)}
	}
	return string(data), nil
}
