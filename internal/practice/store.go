package practice

// Store is the persistence abstraction for session summaries.
// Implementations can be in-memory, file-based, or remote.
// The Repository uses Store for all reads and writes; callers of Repository
// do not need to know which Store is used.
type Store interface {
	GetSummary(id SessionID) (Summary, bool)
	SetSummary(s Summary)
	ListSessionIDs() []SessionID
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	summaries map[SessionID]Summary
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		summaries: make(map[SessionID]Summary),
	}
}

// GetSummary implements Store.GetSummary.
func (s *InMemoryStore) GetSummary(id SessionID) (Summary, bool) {
	sum, ok := s.summaries[id]
	return sum, ok
}

// SetSummary implements Store.SetSummary.
func (s *InMemoryStore) SetSummary(sum Summary) {
	s.summaries[sum.SessionID] = sum
}

// ListSessionIDs implements Store.ListSessionIDs.
func (s *InMemoryStore) ListSessionIDs() []SessionID {
	ids := make([]SessionID, 0, len(s.summaries))
	for id := range s.summaries {
		ids = append(ids, id)
	}
	return ids
}
