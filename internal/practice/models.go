// Package practice sequences the story sentences a user signs through in a
// practice session and records finished-session summaries.
package practice

import "time"

// SessionID uniquely identifies a practice session.
type SessionID string

// Mode is the practice session's current phase.
type Mode string

// Practice modes.
const (
	// ModeListening means the session is waiting for a sign attempt at the
	// current sentence.
	ModeListening Mode = "listening"
	// ModeFeedback means an attempt was just completed and the session is
	// waiting for the user's choice (retry or advance).
	ModeFeedback Mode = "feedback"
	// ModeCompleted means every sentence has been worked through.
	ModeCompleted Mode = "completed"
)

// Control actions accepted by the manager's single dispatcher.
const (
	ActionStartSession  = "start_session"
	ActionTryAgain      = "try_again"
	ActionNextSentence  = "next_sentence"
	ActionCompleteStory = "complete_story"
	ActionStopSession   = "stop_session"
)

// Session is the per-connection practice state. It is owned and mutated
// exclusively by one connection's processing loop.
type Session struct {
	ID           SessionID
	Sentences    []string
	CurrentIndex int
	Mode         Mode
	Active       bool
	StartedAt    time.Time

	// attempts counts completed gesture attempts, for the summary.
	attempts int
}

// CurrentSentence returns the sentence at the current index.
func (s *Session) CurrentSentence() string {
	if s == nil || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Sentences) {
		return ""
	}
	return s.Sentences[s.CurrentIndex]
}

// ControlResult is the structured outcome of every control call.
type ControlResult struct {
	Success              bool      `json:"success"`
	Reason               string    `json:"reason,omitempty"`
	SessionID            SessionID `json:"session_id,omitempty"`
	CurrentSentence      string    `json:"current_sentence,omitempty"`
	CurrentSentenceIndex int       `json:"current_sentence_index"`
	PracticeMode         Mode      `json:"practice_mode,omitempty"`
	TotalSentences       int       `json:"total_sentences,omitempty"`
}

// Summary is the record persisted when a session ends. It is the only thing
// this subsystem hands to the analytics sink.
type Summary struct {
	SessionID          SessionID
	SentenceCount      int
	SentencesCompleted int
	Attempts           int
	Completed          bool
	StartedAt          time.Time
	EndedAt            time.Time
}
