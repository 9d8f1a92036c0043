// Package store persists planning poker sessions and votes.
package store

import (
	"context"
	"errors"

	"github.com/danielolaszy/poker/pkg/models"
)

// ErrNotFound is returned when a session or vote does not exist.
var ErrNotFound = errors.New("not found")

// Repository is the persistence contract used by the session service.
type Repository interface {
	// GetSession returns the session for an issue key or ErrNotFound.
	GetSession(ctx context.Context, issueKey string) (*models.Session, error)
	// CreateSession inserts a new session.
	CreateSession(ctx context.Context, s *models.Session) error
	// UpdateSession stores the session window and final estimate.
	UpdateSession(ctx context.Context, s *models.Session) error

	// SaveVote inserts or replaces the voter's vote in a session.
	SaveVote(ctx context.Context, v *models.Vote) error
	// GetVote returns one voter's vote or ErrNotFound.
	GetVote(ctx context.Context, sessionID, voter string) (*models.Vote, error)
	// ListVotes returns all votes of a session, oldest first.
	ListVotes(ctx context.Context, sessionID string) ([]models.Vote, error)

	Ping(ctx context.Context) error
	Close() error
}
