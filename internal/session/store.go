package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/programme-lv/assessor/internal/domain"
)

// Store persists attempts and their question results. Attempts are never
// deleted and question results are append-only.
type Store interface {
	// CreateAttempt fails with domain.ErrDuplicateAttempt when the
	// (test, user, attempt number) triple is taken.
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	UpdateAttempt(ctx context.Context, a *domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (*domain.Attempt, error)
	// ListAttempts returns the user's attempts ordered by attempt number.
	ListAttempts(ctx context.Context, testID, userID string) ([]*domain.Attempt, error)
	ListInProgress(ctx context.Context) ([]*domain.Attempt, error)

	AppendQuestionResult(ctx context.Context, attemptID string, r domain.QuestionResult) error
	// LatestQuestionResults returns the most recent result per problem.
	LatestQuestionResults(ctx context.Context, attemptID string) (map[string]domain.QuestionResult, error)
}

// Locker is implemented by stores shared between processes. Machine holds
// the lock for the whole of every transition of one user on one test.
type Locker interface {
	Lock(ctx context.Context, testID, userID string) (unlock func(), err error)
}

func userKey(testID, userID string) string {
	return testID + "\x00" + userID
}

// MemoryStore keeps everything in process. Entities live in flat maps keyed
// by ID and refer to each other by ID only.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	byUser   map[string][]string
	results  map[string][]domain.QuestionResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: map[string]domain.Attempt{},
		byUser:   map[string][]string{},
		results:  map[string][]domain.QuestionResult{},
	}
}

func (s *MemoryStore) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey(a.TestID, a.UserID)
	for _, id := range s.byUser[key] {
		if s.attempts[id].AttemptNumber == a.AttemptNumber {
			return fmt.Errorf("%w: test %s user %s number %d",
				domain.ErrDuplicateAttempt, a.TestID, a.UserID, a.AttemptNumber)
		}
	}
	s.attempts[a.ID] = *a
	s.byUser[key] = append(s.byUser[key], a.ID)
	return nil
}

func (s *MemoryStore) UpdateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.ID]; !ok {
		return fmt.Errorf("attempt %s: %w", a.ID, domain.ErrNotFound)
	}
	s.attempts[a.ID] = *a
	return nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, id string) (*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, testID, userID string) ([]*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userKey(testID, userID)]
	res := make([]*domain.Attempt, 0, len(ids))
	for _, id := range ids {
		a := s.attempts[id]
		res = append(res, &a)
	}
	SortByNumber(res)
	return res, nil
}

func (s *MemoryStore) ListInProgress(_ context.Context) ([]*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*domain.Attempt
	for _, a := range s.attempts {
		if a.Status == domain.StatusInProgress {
			res = append(res, &a)
		}
	}
	return res, nil
}

func (s *MemoryStore) AppendQuestionResult(_ context.Context, attemptID string, r domain.QuestionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[attemptID]; !ok {
		return fmt.Errorf("attempt %s: %w", attemptID, domain.ErrNotFound)
	}
	s.results[attemptID] = append(s.results[attemptID], r)
	return nil
}

func (s *MemoryStore) LatestQuestionResults(_ context.Context, attemptID string) (map[string]domain.QuestionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Latest(s.results[attemptID]), nil
}

// Latest keeps the last result per problem from an append-only history.
func Latest(history []domain.QuestionResult) map[string]domain.QuestionResult {
	res := make(map[string]domain.QuestionResult, len(history))
	for _, r := range history {
		res[r.ProblemID] = r
	}
	return res
}

// SortByNumber orders attempts by attempt number.
func SortByNumber(as []*domain.Attempt) {
	slices.SortFunc(as, func(a, b *domain.Attempt) int {
		return a.AttemptNumber - b.AttemptNumber
	})
}
