package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danielolaszy/poker/internal/session"
	"github.com/danielolaszy/poker/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
)

// Vote actions accepted by the vote endpoint. An empty action is a vote.
const (
	actionVote          = "vote"
	actionEndSession    = "endSession"
	actionApplyEstimate = "applyEstimate"
)

var errUnknownAction = errors.New("Unknown action.")

type widgetData struct {
	Session   *models.Session
	State     models.SessionState
	Instant   bool
	Creator   bool
	Cards     models.CardSet
	MyValue   string
	MyComment string
	Voters    []string
	Votes     []models.Vote
	Stats     models.SessionStats
	Estimates []string
}

type pageData struct {
	Token    string
	IssueKey string
	Widget   *widgetData
	Message  string
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidKey),
		errors.Is(err, session.ErrInvalidVote),
		errors.Is(err, session.ErrInvalidEstimate),
		errors.Is(err, session.ErrNotStarted),
		errors.Is(err, session.ErrEnded),
		errors.Is(err, session.ErrNotEnded),
		errors.Is(err, session.ErrVotesHidden),
		errors.Is(err, errUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrNotCreator),
		errors.Is(err, session.ErrNotCreatorApply):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrUnknownIssue):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeText(w, status, http.StatusText(status))
		return
	}
	s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "reason", err)
	writeText(w, status, err.Error())
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// widget gathers what the voting widget shows to user.
func (s *Server) widget(ctx context.Context, sess *models.Session, user string, instant bool) (*widgetData, error) {
	votes, err := s.svc.Votes(ctx, sess)
	if err != nil {
		return nil, err
	}
	data := &widgetData{
		Session: sess,
		State:   sess.StateAt(s.svc.Now()),
		Instant: instant,
		Creator: user != "" && sess.Author == user,
		Cards:   s.svc.Cards(),
		Votes:   votes,
		Stats:   session.Stats(votes),
	}
	for _, v := range votes {
		data.Voters = append(data.Voters, v.Voter)
	}
	if user != "" {
		mine, err := s.svc.MyVote(ctx, sess, user)
		if err != nil {
			return nil, err
		}
		if mine != nil {
			data.MyValue = mine.Value
			data.MyComment = mine.Comment
		}
	}
	for _, value := range session.DistinctValues(votes) {
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			data.Estimates = append(data.Estimates, value)
		}
	}
	return data, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		writeText(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) handleCSRFFailure(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("csrf check failed",
		"path", r.URL.Path,
		"reason", csrf.FailureReason(r))
	writeText(w, http.StatusForbidden, "Your session token is invalid or has expired. Please reload the page.")
}

// handleBrowse renders the host page of an issue with its inline widget.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	user := UserFromContext(r.Context())
	data := pageData{Token: csrf.Token(r), IssueKey: key}

	sess, err := s.svc.Get(r.Context(), key)
	switch {
	case errors.Is(err, session.ErrNotFound):
		data.Message = err.Error()
	case err != nil:
		s.writeError(w, r, err)
		return
	default:
		data.Widget, err = s.widget(r.Context(), sess, user, true)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.render(w, r, "page", data)
}

// handleCreateSession finds or creates the session for the posted key.
// Only this endpoint restarts an ended session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	key := r.FormValue("key")
	user := UserFromContext(r.Context())
	if _, err := s.svc.FindOrCreate(r.Context(), key, user); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// handleWidget renders the widget of an existing session: the vote form
// while it is open, the results once voting ended.
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := UserFromContext(r.Context())
	sess, err := s.svc.Get(r.Context(), q.Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.widget(r.Context(), sess, user, q.Get("instant") == "true")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, "widget", data)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.FormValue("key")
	user := UserFromContext(ctx)
	if user == "" {
		s.writeError(w, r, session.ErrNotLoggedIn)
		return
	}

	var err error
	switch r.FormValue("action") {
	case "", actionVote:
		err = s.svc.Vote(ctx, key, user, r.FormValue("voteVal"), r.FormValue("voteComment"))
	case actionEndSession:
		err = s.svc.End(ctx, key, user)
	case actionApplyEstimate:
		err = s.svc.ApplyEstimate(ctx, key, user, r.FormValue("finalValue"))
	default:
		err = errUnknownAction
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// handleViewVotes renders the results table of an ended session.
func (s *Server) handleViewVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _, err := s.svc.EndedVotes(ctx, r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.widget(ctx, sess, UserFromContext(ctx), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, "results", data)
}

// handleViewVoters lists who has voted without revealing values.
func (s *Server) handleViewVoters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.svc.Get(ctx, r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := s.widget(ctx, sess, UserFromContext(ctx), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, "voters", data)
}
