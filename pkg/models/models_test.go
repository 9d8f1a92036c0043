package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCardSet(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected CardSet
	}{
		{
			name:     "Empty input uses defaults",
			input:    "",
			expected: DefaultCards,
		},
		{
			name:     "Custom cards with spaces",
			input:    " 1, 2 ,3,?",
			expected: CardSet{"1", "2", "3", "?"},
		},
		{
			name:     "Blank entries are skipped",
			input:    "1,,5,",
			expected: CardSet{"1", "5"},
		},
		{
			name:     "Only separators uses defaults",
			input:    ",,,",
			expected: DefaultCards,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseCardSet(tc.input))
		})
	}
}

func TestCardSetContains(t *testing.T) {
	cards := CardSet{"1", "2", "?"}
	assert.True(t, cards.Contains("?"))
	assert.True(t, cards.Contains("2"))
	assert.False(t, cards.Contains("3"))
	assert.False(t, cards.Contains(""))
	assert.Equal(t, "1,2,?", cards.String())
}

func TestSessionStateAt(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s := &Session{Start: now.Add(-time.Minute), End: now.Add(time.Hour)}

	assert.Equal(t, StateOpen, s.StateAt(now))
	assert.True(t, s.Started(now))
	assert.False(t, s.Started(now.Add(-2*time.Minute)))
	assert.Equal(t, StateEnded, s.StateAt(now.Add(time.Hour)))
	assert.False(t, s.Finalized())

	s.FinalEstimate = &FinalEstimate{Value: "5"}
	assert.True(t, s.Finalized())
}

func TestSessionHandleInstant(t *testing.T) {
	assert.True(t, SessionHandle{IssueKey: "PROJ-1", Mode: ModeInstant}.Instant())
	assert.False(t, SessionHandle{IssueKey: "PROJ-1", Mode: ModeModal}.Instant())
}
