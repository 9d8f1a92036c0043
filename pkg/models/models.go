// Package models defines data structures shared across the application.
package models

import (
	"strings"
	"time"
)

// SessionState is the lifecycle state of a voting session.
type SessionState string

const (
	// StateOpen means votes are still accepted.
	StateOpen SessionState = "open"
	// StateEnded means voting is closed and results are visible.
	StateEnded SessionState = "ended"
)

// Mode selects how the voting widget is rendered.
type Mode string

const (
	// ModeModal renders the widget inside a dialog.
	ModeModal Mode = "modal"
	// ModeInstant renders the widget inline in the host page.
	ModeInstant Mode = "instant"
)

// Session represents a planning poker round for one work item.
type Session struct {
	// ID is the internal identifier of the session
	ID string

	// IssueKey is the work item the session estimates (e.g., "PROJ-123")
	IssueKey string

	// Author is the user who created the session and may end it
	Author string

	// Created is the timestamp when the session was first created
	Created time.Time

	// Start is the timestamp from which votes are accepted
	Start time.Time

	// End is the timestamp after which the session counts as ended
	End time.Time

	// FinalEstimate is set once the creator applies an estimate
	FinalEstimate *FinalEstimate
}

// StateAt reports the lifecycle state of the session at the given time.
func (s *Session) StateAt(now time.Time) SessionState {
	if now.Before(s.End) {
		return StateOpen
	}
	return StateEnded
}

// Started reports whether voting has started at the given time.
func (s *Session) Started(now time.Time) bool {
	return !now.Before(s.Start)
}

// Finalized reports whether an estimate has been applied.
func (s *Session) Finalized() bool {
	return s.FinalEstimate != nil
}

// Vote is a single voter's card in a session.
type Vote struct {
	// SessionID links the vote to its session
	SessionID string

	// Voter is the login of the user who cast the vote
	Voter string

	// Value is the card value (e.g., "5" or "?")
	Value string

	// Comment is optional free text attached to the vote
	Comment string

	// Updated is the timestamp of the latest cast
	Updated time.Time
}

// FinalEstimate is the value written back to the work item.
type FinalEstimate struct {
	// Value is the applied estimate as it was chosen from the cast cards
	Value string

	// AppliedBy is the login of the creator who applied it
	AppliedBy string

	// AppliedAt is when the estimate was applied
	AppliedAt time.Time
}

// SessionStats summarises the numeric votes of a session.
type SessionStats struct {
	Min     float64
	Max     float64
	Average float64
	Count   int
}

// Empty reports whether no numeric votes were counted.
func (s SessionStats) Empty() bool {
	return s.Count == 0
}

// SessionHandle identifies the session an action targets and how it is rendered.
type SessionHandle struct {
	IssueKey string
	Mode     Mode
}

// Instant reports whether the handle targets the inline widget.
func (h SessionHandle) Instant() bool {
	return h.Mode == ModeInstant
}

// CardSet is the ordered list of allowed vote values.
type CardSet []string

// DefaultCards is used when no card set is configured.
var DefaultCards = CardSet{"1", "2", "3", "5", "8", "13", "?"}

// ParseCardSet parses a comma separated card list, ignoring blanks.
// An empty input yields DefaultCards.
func ParseCardSet(s string) CardSet {
	var cards CardSet
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			cards = append(cards, v)
		}
	}
	if len(cards) == 0 {
		return DefaultCards
	}
	return cards
}

// Contains reports whether value is one of the cards.
func (c CardSet) Contains(value string) bool {
	for _, card := range c {
		if card == value {
			return true
		}
	}
	return false
}

// String joins the cards the way they are configured.
func (c CardSet) String() string {
	return strings.Join(c, ",")
}
