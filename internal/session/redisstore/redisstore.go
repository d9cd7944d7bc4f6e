// Package redisstore keeps attempts and question results in Redis so that
// several assessor instances can share them.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/session"
)

const (
	attemptKeyPrefix = "assessor:attempt:"
	userKeyPrefix    = "assessor:attempts:"
	numberKeyPrefix  = "assessor:attempt_no:"
	resultsKeyPrefix = "assessor:results:"
	inProgressKey    = "assessor:in_progress"
	lockKeyPrefix    = "assessor:lock:"
)

const (
	DefaultLockTTL = 10 * time.Second
	lockRetry      = 10 * time.Millisecond
)

// unlockScript deletes the lock only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	rdb     *redis.Client
	lockTTL time.Duration
	logger  *slog.Logger
}

var (
	_ session.Store  = (*Store)(nil)
	_ session.Locker = (*Store)(nil)
)

func New(rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{rdb: rdb, lockTTL: DefaultLockTTL, logger: logger}
}

func lockKey(testID, userID string) string {
	return fmt.Sprintf("%s%s:%s", lockKeyPrefix, testID, userID)
}

// Lock takes the lock of one user on one test, shared by every instance
// using the same Redis. It waits until the lock is free or ctx is done. A
// lock whose holder died is released after the lock TTL.
func (s *Store) Lock(ctx context.Context, testID, userID string) (func(), error) {
	key := lockKey(testID, userID)
	token := uuid.NewString()
	for {
		ok, err := s.rdb.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to take lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(lockRetry):
		}
	}
	return func() {
		err := unlockScript.Run(context.WithoutCancel(ctx), s.rdb, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func attemptKey(id string) string { return attemptKeyPrefix + id }

func userKey(testID, userID string) string {
	return fmt.Sprintf("%s%s:%s", userKeyPrefix, testID, userID)
}

func numberKey(a *domain.Attempt) string {
	return fmt.Sprintf("%s%s:%s:%d", numberKeyPrefix, a.TestID, a.UserID, a.AttemptNumber)
}

func (s *Store) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	// the number key claims (test, user, attempt number) across instances
	claimed, err := s.rdb.SetNX(ctx, numberKey(a), a.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim attempt number: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: test %s user %s number %d",
			domain.ErrDuplicateAttempt, a.TestID, a.UserID, a.AttemptNumber)
	}

	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, attemptKey(a.ID), b, 0)
		pipe.RPush(ctx, userKey(a.TestID, a.UserID), a.ID)
		if a.Status == domain.StatusInProgress {
			pipe.SAdd(ctx, inProgressKey, a.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to save attempt", "attempt_id", a.ID, "error", err)
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

func (s *Store) UpdateAttempt(ctx context.Context, a *domain.Attempt) error {
	exists, err := s.rdb.Exists(ctx, attemptKey(a.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check attempt: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, domain.ErrNotFound)
	}

	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, attemptKey(a.ID), b, 0)
		if a.Status == domain.StatusInProgress {
			pipe.SAdd(ctx, inProgressKey, a.ID)
		} else {
			pipe.SRem(ctx, inProgressKey, a.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to update attempt", "attempt_id", a.ID, "error", err)
		return fmt.Errorf("failed to update attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (*domain.Attempt, error) {
	b, err := s.rdb.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("attempt %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	var a domain.Attempt
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempt %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) getMany(ctx context.Context, ids []string) ([]*domain.Attempt, error) {
	res := make([]*domain.Attempt, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAttempt(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("dangling attempt reference", "attempt_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (s *Store) ListAttempts(ctx context.Context, testID, userID string) ([]*domain.Attempt, error) {
	ids, err := s.rdb.LRange(ctx, userKey(testID, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	res, err := s.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	session.SortByNumber(res)
	return res, nil
}

func (s *Store) ListInProgress(ctx context.Context) ([]*domain.Attempt, error) {
	ids, err := s.rdb.SMembers(ctx, inProgressKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress attempts: %w", err)
	}
	return s.getMany(ctx, ids)
}

func (s *Store) AppendQuestionResult(ctx context.Context, attemptID string, r domain.QuestionResult) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal question result: %w", err)
	}
	if err := s.rdb.RPush(ctx, resultsKeyPrefix+attemptID, b).Err(); err != nil {
		return fmt.Errorf("failed to append question result: %w", err)
	}
	return nil
}

func (s *Store) LatestQuestionResults(ctx context.Context, attemptID string) (map[string]domain.QuestionResult, error) {
	raw, err := s.rdb.LRange(ctx, resultsKeyPrefix+attemptID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read question results: %w", err)
	}
	history := make([]domain.QuestionResult, 0, len(raw))
	for _, item := range raw {
		var r domain.QuestionResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal question result: %w", err)
		}
		history = append(history, r)
	}
	return session.Latest(history), nil
}
