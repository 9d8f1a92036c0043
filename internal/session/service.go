// Package session implements the server-side lifecycle of planning poker sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/danielolaszy/poker/internal/logging"
	"github.com/danielolaszy/poker/internal/store"
	"github.com/danielolaszy/poker/pkg/models"
	"github.com/google/uuid"
)

// Errors returned by Service. Their text is shown to the voter verbatim.
var (
	ErrInvalidKey      = errors.New("A valid issue key is required.")
	ErrNotFound        = errors.New("There is no planning poker session for this issue.")
	ErrNotLoggedIn     = errors.New("You must be logged in to be able to vote.")
	ErrNotStarted      = errors.New("You cannot vote because the planning poker session hasn't started yet.")
	ErrEnded           = errors.New("You cannot vote because the planning poker session has already ended.")
	ErrInvalidVote     = errors.New("The selected card is not an allowed vote.")
	ErrNotCreator      = errors.New("Only the session creator can end the session.")
	ErrNotCreatorApply = errors.New("Only the session creator can apply estimates.")
	ErrNotEnded        = errors.New("Cannot apply estimate until session is ended.")
	ErrVotesHidden     = errors.New("You cannot view votes because the planning poker session hasn't ended yet.")
	ErrInvalidEstimate = errors.New("The estimate must be a number.")
	ErrUnknownIssue    = errors.New("The issue does not exist or you do not have permission to see it.")
)

var (
	issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-\d+$`)
	numericPattern  = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ValidIssueKey reports whether key looks like "PROJ-123".
func ValidIssueKey(key string) bool {
	return issueKeyPattern.MatchString(key)
}

// EstimateWriter writes an applied estimate back to the work item.
type EstimateWriter interface {
	WriteEstimate(ctx context.Context, issueKey string, value float64) error
}

// IssueLookup checks that a work item exists before a session is created for it.
type IssueLookup interface {
	IssueExists(ctx context.Context, issueKey string) (bool, error)
}

// Service enforces who may do what to a session and when.
type Service struct {
	repo   store.Repository
	cards  models.CardSet
	ttl    time.Duration
	writer EstimateWriter
	issues IssueLookup
	now    func() time.Time
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEstimateWriter sets where applied estimates are written.
func WithEstimateWriter(w EstimateWriter) Option {
	return func(s *Service) { s.writer = w }
}

// WithIssueLookup makes session creation verify the issue exists.
func WithIssueLookup(l IssueLookup) Option {
	return func(s *Service) { s.issues = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a session service backed by repo.
func NewService(repo store.Repository, cards models.CardSet, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cards: cards,
		ttl:   ttl,
		now:   time.Now,
		log:   logging.With("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cards returns the allowed vote values.
func (s *Service) Cards() models.CardSet {
	return s.cards
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Get returns the session for an issue key.
func (s *Service) Get(ctx context.Context, issueKey string) (*models.Session, error) {
	if !ValidIssueKey(issueKey) {
		return nil, ErrInvalidKey
	}
	sess, err := s.repo.GetSession(ctx, issueKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sess, err
}

// FindOrCreate returns the session for issueKey, creating one owned by user
// if none exists. An ended session without a final estimate is restarted for
// another TTL; a finalized session is returned unchanged.
func (s *Service) FindOrCreate(ctx context.Context, issueKey, user string) (*models.Session, error) {
	if user == "" {
		return nil, ErrNotLoggedIn
	}
	sess, err := s.Get(ctx, issueKey)
	now := s.now()

	if errors.Is(err, ErrNotFound) {
		if s.issues != nil {
			ok, err := s.issues.IssueExists(ctx, issueKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrUnknownIssue
			}
		}
		sess = &models.Session{
			ID:       uuid.NewString(),
			IssueKey: issueKey,
			Author:   user,
			Created:  now,
			Start:    now,
			End:      now.Add(s.ttl),
		}
		if err := s.repo.CreateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		s.log.Info("session created", "key", issueKey, "author", user, "end", sess.End)
		return sess, nil
	}
	if err != nil {
		return nil, err
	}

	if sess.StateAt(now) == models.StateEnded && !sess.Finalized() {
		sess.Start = now
		sess.End = now.Add(s.ttl)
		if err := s.repo.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to restart session: %w", err)
		}
		s.log.Info("session restarted", "key", issueKey, "end", sess.End)
	}
	return sess, nil
}

// Vote records user's card for the session.
func (s *Service) Vote(ctx context.Context, issueKey, user, value, comment string) error {
	if user == "" {
		return ErrNotLoggedIn
	}
	sess, err := s.Get(ctx, issueKey)
	if err != nil {
		return err
	}
	now := s.now()
	if !sess.Started(now) {
		return ErrNotStarted
	}
	if sess.StateAt(now) == models.StateEnded {
		return ErrEnded
	}
	if !s.cards.Contains(value) {
		return ErrInvalidVote
	}

	if err := s.repo.SaveVote(ctx, &models.Vote{
		SessionID: sess.ID,
		Voter:     user,
		Value:     value,
		Comment:   comment,
		Updated:   now,
	}); err != nil {
		return err
	}
	s.log.Info("vote saved", "key", issueKey, "voter", user)
	return nil
}

// End closes voting immediately. Only the creator may end a session.
func (s *Service) End(ctx context.Context, issueKey, user string) error {
	sess, err := s.Get(ctx, issueKey)
	if err != nil {
		return err
	}
	if sess.Author != user {
		return ErrNotCreator
	}

	now := s.now()
	if sess.StateAt(now) == models.StateEnded {
		return nil
	}
	sess.End = now
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return err
	}
	s.log.Info("session ended", "key", issueKey, "by", user)
	return nil
}

// ApplyEstimate writes value to the work item and records it as final.
func (s *Service) ApplyEstimate(ctx context.Context, issueKey, user, value string) error {
	sess, err := s.Get(ctx, issueKey)
	if err != nil {
		return err
	}
	if sess.Author != user {
		return ErrNotCreatorApply
	}
	now := s.now()
	if sess.StateAt(now) != models.StateEnded {
		return ErrNotEnded
	}
	if !numericPattern.MatchString(value) {
		return ErrInvalidEstimate
	}
	estimate, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return ErrInvalidEstimate
	}

	if s.writer != nil {
		if err := s.writer.WriteEstimate(ctx, issueKey, estimate); err != nil {
			return fmt.Errorf("failed to write estimate to issue: %w", err)
		}
	}

	sess.FinalEstimate = &models.FinalEstimate{Value: value, AppliedBy: user, AppliedAt: now}
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return err
	}
	s.log.Info("estimate applied", "key", issueKey, "value", value, "by", user)
	return nil
}

// Votes returns every vote of the session.
func (s *Service) Votes(ctx context.Context, sess *models.Session) ([]models.Vote, error) {
	return s.repo.ListVotes(ctx, sess.ID)
}

// EndedVotes returns the votes of a session, refusing while it is still open.
func (s *Service) EndedVotes(ctx context.Context, issueKey string) (*models.Session, []models.Vote, error) {
	sess, err := s.Get(ctx, issueKey)
	if err != nil {
		return nil, nil, err
	}
	if sess.StateAt(s.now()) != models.StateEnded {
		return nil, nil, ErrVotesHidden
	}
	votes, err := s.repo.ListVotes(ctx, sess.ID)
	return sess, votes, err
}

// MyVote returns user's vote or nil if they have not voted.
func (s *Service) MyVote(ctx context.Context, sess *models.Session, user string) (*models.Vote, error) {
	v, err := s.repo.GetVote(ctx, sess.ID, user)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Stats summarises the numeric votes. Non-numeric cards such as "?" are skipped.
func Stats(votes []models.Vote) models.SessionStats {
	var stats models.SessionStats
	var sum float64
	for _, v := range votes {
		if !numericPattern.MatchString(v.Value) {
			continue
		}
		n, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			continue
		}
		if stats.Count == 0 || n < stats.Min {
			stats.Min = n
		}
		if stats.Count == 0 || n > stats.Max {
			stats.Max = n
		}
		sum += n
		stats.Count++
	}
	if stats.Count > 0 {
		stats.Average = sum / float64(stats.Count)
	}
	return stats
}

// DistinctValues returns the cast values in first-seen order.
func DistinctValues(votes []models.Vote) []string {
	seen := make(map[string]bool)
	var values []string
	for _, v := range votes {
		if !seen[v.Value] {
			seen[v.Value] = true
			values = append(values, v.Value)
		}
	}
	return values
}
