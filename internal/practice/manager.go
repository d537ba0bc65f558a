package practice

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"signstream/internal/gesture"
)

var (
	// ErrNoSentences is returned when a session is started with an empty
	// sentence list.
	ErrNoSentences = errors.New("no sentences provided")

	// ErrNoActiveSession is returned for control actions without an active
	// session.
	ErrNoActiveSession = errors.New("no active session")
)

// Manager holds one connection's practice session and applies control
// actions and gesture events to it. It is driven by a single processing
// loop and needs no internal locking.
type Manager struct {
	session *Session
	repo    Repository
}

// NewManager returns a Manager that persists session summaries to repo.
// repo may be nil to disable persistence (e.g. in tests).
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// Session returns the current session, or nil when none is active.
func (m *Manager) Session() *Session {
	if m.session == nil || !m.session.Active {
		return nil
	}
	return m.session
}

// Start creates a new session over sentences and returns the first sentence
// in listening mode. An empty sentence list fails with ErrNoSentences and
// creates no session; an in-progress session is ended (and its summary
// persisted) before the new one begins.
func (m *Manager) Start(id SessionID, sentences []string) (*ControlResult, error) {
	if len(sentences) == 0 {
		return &ControlResult{Success: false, Reason: ErrNoSentences.Error()}, ErrNoSentences
	}

	if m.Session() != nil {
		m.endSession()
	}

	if id == "" {
		id = SessionID(uuid.NewString())
	}

	m.session = &Session{
		ID:        id,
		Sentences: sentences,
		Mode:      ModeListening,
		Active:    true,
		StartedAt: time.Now().UTC(),
	}

	return m.result(true, ""), nil
}

// Control routes every session-mutating action through one dispatcher.
// Unknown actions and actions without an active session return a failed
// result and leave all state untouched.
func (m *Manager) Control(action string) *ControlResult {
	if action == ActionStartSession {
		// start_session carries a payload and goes through Start; reaching
		// here means the payload was missing.
		return &ControlResult{Success: false, Reason: "start_session requires story sentences"}
	}

	s := m.Session()
	if s == nil {
		return &ControlResult{Success: false, Reason: ErrNoActiveSession.Error()}
	}

	switch action {
	case ActionTryAgain:
		// Re-attempt the same sentence regardless of prior mode.
		s.Mode = ModeListening
		return m.result(true, "")

	case ActionNextSentence:
		if s.CurrentIndex+1 < len(s.Sentences) {
			s.CurrentIndex++
			s.Mode = ModeListening
		} else {
			s.Mode = ModeCompleted
		}
		return m.result(true, "")

	case ActionCompleteStory:
		s.Mode = ModeCompleted
		return m.result(true, "")

	case ActionStopSession:
		res := m.result(true, "")
		m.endSession()
		return res

	default:
		return m.result(false, "unknown action: "+action)
	}
}

// HandleGestureEnd applies a completed gesture to the session: in listening
// mode it moves to feedback, signalling the attempt is ready for
// evaluation. It never advances the sentence index; only an explicit
// control action does that. Returns true when the mode changed.
func (m *Manager) HandleGestureEnd(_ gesture.Event) bool {
	s := m.Session()
	if s == nil || s.Mode != ModeListening {
		return false
	}
	s.Mode = ModeFeedback
	s.attempts++
	return true
}

// Close ends any active session, persisting its summary. Called when the
// owning connection goes away.
func (m *Manager) Close() {
	if m.Session() != nil {
		m.endSession()
	}
}

// endSession deactivates the session and hands its summary to the
// repository.
func (m *Manager) endSession() {
	s := m.session
	if s == nil {
		return
	}
	s.Active = false

	if m.repo != nil {
		completed := s.Mode == ModeCompleted
		done := s.CurrentIndex
		if completed {
			done = len(s.Sentences)
		}
		m.repo.SaveSummary(Summary{
			SessionID:          s.ID,
			SentenceCount:      len(s.Sentences),
			SentencesCompleted: done,
			Attempts:           s.attempts,
			Completed:          completed,
			StartedAt:          s.StartedAt,
			EndedAt:            time.Now().UTC(),
		})
	}
}

func (m *Manager) result(success bool, reason string) *ControlResult {
	s := m.session
	if s == nil {
		return &ControlResult{Success: success, Reason: reason}
	}
	return &ControlResult{
		Success:              success,
		Reason:               reason,
		SessionID:            s.ID,
		CurrentSentence:      s.CurrentSentence(),
		CurrentSentenceIndex: s.CurrentIndex,
		PracticeMode:         s.Mode,
		TotalSentences:       len(s.Sentences),
	}
}
