package practice

import "sync"

// Repository is the concurrency-safe contract for recording finished
// practice sessions. Managers call it from their own connection loops, so
// implementations must tolerate concurrent writers.
type Repository interface {
	// SaveSummary records the summary of an ended session. Saving the same
	// session twice overwrites the earlier record.
	SaveSummary(s Summary)

	// GetSummary returns the recorded summary for a session.
	GetSummary(id SessionID) (Summary, bool)

	// SummaryCount returns the number of recorded summaries.
	SummaryCount() int

	// CompletedCount returns the number of summaries whose session reached
	// completion. Used for metrics.
	CompletedCount() int
}

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository. It uses a Store for persistence; by default that is an
// InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default
// in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the
// given Store. Useful for testing or for plugging in a different
// persistence backend.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// SaveSummary implements Repository.SaveSummary.
func (r *InMemoryRepository) SaveSummary(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.SetSummary(s)
}

// GetSummary implements Repository.GetSummary.
func (r *InMemoryRepository) GetSummary(id SessionID) (Summary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSummary(id)
}

// SummaryCount implements Repository.SummaryCount.
func (r *InMemoryRepository) SummaryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListSessionIDs())
}

// CompletedCount implements Repository.CompletedCount.
func (r *InMemoryRepository) CompletedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if s, ok := r.store.GetSummary(id); ok && s.Completed {
			n++
		}
	}
	return n
}
