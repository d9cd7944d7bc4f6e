package assessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/records"
	"github.com/programme-lv/assessor/internal/scoring"
	"github.com/programme-lv/assessor/internal/session"
	"golang.org/x/sync/errgroup"
)

func (s *Service) Start(ctx context.Context, testID, userID string) (api.StartResponse, error) {
	if testID == "" || userID == "" {
		return api.StartResponse{}, fmt.Errorf("%w: testId and userId are required", ErrBadRequest)
	}
	t, err := s.content.Test(ctx, testID)
	if err != nil {
		return api.StartResponse{}, err
	}
	a, err := s.machine.Start(ctx, t, userID)
	if err != nil {
		return api.StartResponse{}, err
	}
	s.activity.Record(a.ID, activity.Login, "")
	return api.StartResponse{
		AttemptID:     a.ID,
		AttemptNumber: a.AttemptNumber,
		StartedAt:     a.StartedAt,
		Deadline:      t.Deadline(a.StartedAt),
	}, nil
}

// attempt loads an attempt together with its test.
func (s *Service) attempt(ctx context.Context, attemptID string) (*domain.Attempt, *domain.Test, error) {
	a, err := s.machine.Store().GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.content.Test(ctx, a.TestID)
	if err != nil {
		return nil, nil, err
	}
	return a, t, nil
}

// notInProgress rejects events on attempts that cannot take answers.
func notInProgress(a *domain.Attempt, event string) error {
	if session.CanEnd(a) {
		return nil
	}
	reason := domain.ErrNotInProgress
	if a.Status.IsTerminal() {
		reason = domain.ErrAttemptTerminal
	}
	return &domain.TransitionError{AttemptID: a.ID, From: a.Status, Event: event, Reason: reason}
}

func (s *Service) gradeQuestion(ctx context.Context, a *domain.Attempt, t *domain.Test, sub api.QuestionSubmission) (domain.QuestionResult, error) {
	q, ok := t.Question(sub.ProblemID)
	if !ok {
		return domain.QuestionResult{}, fmt.Errorf("%w: problem %s is not part of test %s", ErrBadRequest, sub.ProblemID, t.ID)
	}
	if err := s.validateCode(sub.Language, sub.Code); err != nil {
		return domain.QuestionResult{}, err
	}
	p, err := s.content.Problem(ctx, sub.ProblemID)
	if err != nil {
		return domain.QuestionResult{}, err
	}

	spec := domain.SubmissionSpec{
		LanguageID:     sub.Language,
		Code:           sub.Code,
		TestCases:      p.TestCases,
		TimeLimit:      time.Duration(firstPositive(q.TimeLimitMs, p.TimeLimitMs)) * time.Millisecond,
		MemoryLimitKiB: firstPositive(q.MemoryLimitKiB, p.MemoryLimitKiB),
	}

	ctx, done := s.inflight.track(ctx, a.ID)
	defer done()

	logger := s.logger.With("attempt_id", a.ID, "problem_id", p.ID, "language", sub.Language)
	var outcomes []domain.TestCaseOutcome
	for try := 0; ; try++ {
		outcomes, err = s.harness.Grade(ctx, spec, nil)
		if err != nil {
			if errors.Is(context.Cause(ctx), ErrGradingCancelled) {
				return domain.QuestionResult{}, ErrGradingCancelled
			}
			return domain.QuestionResult{}, err
		}
		if !scoring.NeedsRetry(outcomes) {
			break
		}
		if try >= s.cfg.GradingRetries {
			logger.Error("sandbox kept failing, giving up", "tries", try+1)
			return domain.QuestionResult{}, ErrGradingUnavailable
		}
		logger.Warn("sandbox failure, regrading", "try", try+1)
	}

	qr := scoring.ScoreQuestion(p.ID, outcomes, q.Marks)
	qr.LanguageID = sub.Language
	if err := s.ledger.RecordGrading(ctx, records.NewGrading(a.ID, t.ID, a.UserID, qr, s.machine.Now())); err != nil {
		logger.Error("failed to record grading", "error", err)
	}
	return qr, nil
}

func firstPositive(vals ...int64) int64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func questionScore(qr domain.QuestionResult) api.QuestionScore {
	return api.QuestionScore{
		ProblemID:   qr.ProblemID,
		TotalCases:  qr.TotalCases,
		PassedCases: qr.PassedCases,
		Score:       qr.Score,
		MaxScore:    qr.MaxScore,
		IsCorrect:   qr.IsCorrect,
		ErrorKind:   string(qr.ErrorKind),
	}
}

// SubmitQuestion grades one answer while the attempt is in progress. The
// latest answer per problem counts when the attempt is scored.
func (s *Service) SubmitQuestion(ctx context.Context, attemptID string, sub api.QuestionSubmission) (api.QuestionScore, error) {
	a, t, err := s.attempt(ctx, attemptID)
	if err != nil {
		return api.QuestionScore{}, err
	}
	if err := notInProgress(a, session.EventAnswer); err != nil {
		return api.QuestionScore{}, err
	}
	s.activity.Record(a.ID, activity.Submit, sub.Language)

	qr, err := s.gradeQuestion(ctx, a, t, sub)
	if err != nil {
		return api.QuestionScore{}, err
	}
	if _, err := s.machine.SubmitQuestion(ctx, t, a.ID, qr); err != nil {
		return api.QuestionScore{}, err
	}
	return questionScore(qr), nil
}

// Submit grades the final answers, hands the attempt in and scores it.
func (s *Service) Submit(ctx context.Context, attemptID string, subs []api.QuestionSubmission) (api.SubmitResponse, error) {
	a, t, err := s.attempt(ctx, attemptID)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	if err := notInProgress(a, session.EventSubmit); err != nil {
		return api.SubmitResponse{}, err
	}

	qrs := make([]domain.QuestionResult, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		s.activity.Record(a.ID, activity.Submit, sub.Language)
		g.Go(func() error {
			qr, err := s.gradeQuestion(gctx, a, t, sub)
			if err != nil {
				return err
			}
			qrs[i] = qr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return api.SubmitResponse{}, err
	}

	done, res, err := s.machine.Submit(ctx, t, a.ID, qrs)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	s.archive(ctx, done, res)
	return submitResponse(done, res), nil
}

// End closes the attempt, scoring the answers submitted so far.
func (s *Service) End(ctx context.Context, attemptID string) (api.SubmitResponse, error) {
	a, t, err := s.attempt(ctx, attemptID)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	done, res, err := s.machine.End(ctx, t, a.ID)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	s.archive(ctx, done, res)
	return submitResponse(done, res), nil
}

func submitResponse(a *domain.Attempt, res domain.AttemptResult) api.SubmitResponse {
	resp := api.SubmitResponse{
		AttemptID:        a.ID,
		Status:           string(a.Status),
		TotalScore:       res.TotalScore,
		MaxScore:         res.MaxScore,
		Percentage:       res.Percentage,
		Passed:           res.Passed,
		IsLateSubmission: res.IsLateSubmission,
		PerQuestion:      make([]api.QuestionScore, 0, len(res.Questions)),
	}
	for _, qr := range res.Questions {
		resp.PerQuestion = append(resp.PerQuestion, questionScore(qr))
	}
	return resp
}

// archive writes a finished attempt to the ledger and releases its
// in-memory state.
func (s *Service) archive(ctx context.Context, a *domain.Attempt, res domain.AttemptResult) {
	s.inflight.cancel(a.ID, ErrGradingCancelled)
	summary := s.activity.Summary(a.ID)
	if err := s.ledger.RecordAttempt(ctx, a, res, summary); err != nil {
		s.logger.Error("failed to record attempt", "attempt_id", a.ID, "error", err)
	}
	s.activity.Forget(a.ID)
}

func (s *Service) Status(ctx context.Context, testID, userID string) (api.StatusResponse, error) {
	t, err := s.content.Test(ctx, testID)
	if err != nil {
		return api.StatusResponse{}, err
	}
	v, err := s.machine.Status(ctx, t, userID)
	if err != nil {
		return api.StatusResponse{}, err
	}

	resp := api.StatusResponse{
		TestID:           testID,
		UserID:           userID,
		Status:           string(v.Assignment.Status),
		AttemptsUsed:     v.AttemptsUsed,
		CanStart:         v.CanStart,
		CanEnd:           v.CanEnd,
		IsExpired:        v.IsExpired,
		TimeSpentMinutes: int64(v.TimeSpentMinutes),
		Deadline:         v.Deadline,
		RemainingSeconds: int64(v.Remaining / time.Second),
		Published:        t.IsResultPublishAutomatically,
	}
	if l := v.Latest; l != nil {
		resp.AttemptID = l.ID
		resp.AttemptStatus = string(l.Status)
		if l.Status.IsTerminal() && resp.Published {
			total, max, pct := l.TotalScore, l.MaxScore, l.Percentage
			resp.TotalScore = &total
			resp.MaxScore = &max
			resp.Percentage = &pct
		}
	}
	return resp, nil
}

func (s *Service) Abandon(ctx context.Context, attemptID, reason string) (api.AttemptView, error) {
	a, t, err := s.attempt(ctx, attemptID)
	if err != nil {
		return api.AttemptView{}, err
	}
	if reason == "" {
		reason = "abandoned by user"
	}
	a, err = s.machine.Abandon(ctx, t, a.ID, reason)
	if err != nil {
		return api.AttemptView{}, err
	}
	s.finishAbandoned(ctx, t, a)
	return attemptView(a), nil
}

func (s *Service) finishAbandoned(ctx context.Context, t *domain.Test, a *domain.Attempt) {
	res, err := s.machine.Result(ctx, t, a)
	if err != nil {
		s.logger.Error("failed to score abandoned attempt", "attempt_id", a.ID, "error", err)
	}
	s.archive(ctx, a, res)
}

// RecordViolation counts an integrity violation reported by the client.
func (s *Service) RecordViolation(ctx context.Context, attemptID, kind string) (api.ViolationResponse, error) {
	a, t, err := s.attempt(ctx, attemptID)
	if err != nil {
		return api.ViolationResponse{}, err
	}
	a, err = s.machine.RecordViolation(ctx, t, a.ID)
	if err != nil {
		return api.ViolationResponse{}, err
	}
	s.logger.Info("violation recorded", "attempt_id", a.ID, "kind", kind, "count", a.ViolationCount)
	if a.Status == domain.StatusAbandoned {
		s.finishAbandoned(ctx, t, a)
	}
	return api.ViolationResponse{
		AttemptID:      a.ID,
		ViolationCount: a.ViolationCount,
		Status:         string(a.Status),
	}, nil
}

// RecordActivity counts a client-side event such as save or erase.
func (s *Service) RecordActivity(ctx context.Context, attemptID string, kind activity.Kind, language string) error {
	a, err := s.machine.Store().GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if err := notInProgress(a, "record activity"); err != nil {
		return err
	}
	s.activity.Record(a.ID, kind, language)
	return nil
}

func (s *Service) Attempt(ctx context.Context, attemptID string) (api.AttemptView, error) {
	a, err := s.machine.Store().GetAttempt(ctx, attemptID)
	if err != nil {
		return api.AttemptView{}, err
	}
	return attemptView(a), nil
}

func attemptView(a *domain.Attempt) api.AttemptView {
	return api.AttemptView{
		AttemptID:        a.ID,
		TestID:           a.TestID,
		UserID:           a.UserID,
		AttemptNumber:    a.AttemptNumber,
		Status:           string(a.Status),
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		TimeSpentMinutes: int64(a.TimeSpentMinutes),
		IsLateSubmission: a.IsLateSubmission,
		ViolationCount:   a.ViolationCount,
	}
}
