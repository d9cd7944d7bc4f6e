package scoring_test

import (
	"testing"
	"time"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcomes(passed, total int) []domain.TestCaseOutcome {
	res := make([]domain.TestCaseOutcome, total)
	for i := range res {
		res[i].Order = i
		if i < passed {
			res[i].Passed = true
		} else {
			res[i].ErrorKind = domain.WrongAnswer
		}
	}
	return res
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		num, den, want int
	}{
		{10, 3, 3},
		{20, 3, 7},
		{1, 2, 1},
		{3, 2, 2},
		{0, 5, 0},
		{5, 5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scoring.RoundHalfUp(tt.num, tt.den), "%d/%d", tt.num, tt.den)
	}
}

func TestScoreQuestion(t *testing.T) {
	t.Run("one of three", func(t *testing.T) {
		qr := scoring.ScoreQuestion("p", outcomes(1, 3), 10)
		assert.Equal(t, 3, qr.Score)
		assert.False(t, qr.IsCorrect)
		assert.Equal(t, domain.WrongAnswer, qr.ErrorKind)
	})
	t.Run("two of three", func(t *testing.T) {
		qr := scoring.ScoreQuestion("p", outcomes(2, 3), 10)
		assert.Equal(t, 7, qr.Score)
	})
	t.Run("all passed", func(t *testing.T) {
		qr := scoring.ScoreQuestion("p", outcomes(4, 4), 10)
		assert.Equal(t, 10, qr.Score)
		assert.True(t, qr.IsCorrect)
		assert.Equal(t, domain.NoError, qr.ErrorKind)
	})
	t.Run("no cases", func(t *testing.T) {
		qr := scoring.ScoreQuestion("p", nil, 10)
		assert.Equal(t, 0, qr.Score)
		assert.False(t, qr.IsCorrect)
		assert.LessOrEqual(t, qr.PassedCases, qr.TotalCases)
	})
	t.Run("compilation error", func(t *testing.T) {
		oc := []domain.TestCaseOutcome{
			{ErrorKind: domain.CompilationError},
			{ErrorKind: domain.CompilationError},
		}
		qr := scoring.ScoreQuestion("p", oc, 10)
		assert.Equal(t, 0, qr.Score)
		assert.Equal(t, domain.CompilationError, qr.ErrorKind)
	})
}

func TestScoreAttempt(t *testing.T) {
	totals := scoring.ScoreAttempt([]domain.QuestionResult{
		{Score: 3, MaxScore: 10},
		{Score: 7, MaxScore: 10},
	})
	assert.Equal(t, 10, totals.TotalScore)
	assert.Equal(t, 20, totals.MaxScore)
	assert.InDelta(t, 50.0, totals.Percentage, 1e-9)

	empty := scoring.ScoreAttempt(nil)
	assert.Equal(t, 0.0, empty.Percentage)

	zero := scoring.ScoreAttempt([]domain.QuestionResult{{Score: 0, MaxScore: 0}})
	assert.Equal(t, 0.0, zero.Percentage)
}

func TestIsLate(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	test := &domain.Test{EndDate: end}

	assert.False(t, scoring.IsLate(end.Add(-time.Second), test))
	assert.False(t, scoring.IsLate(end, test))
	assert.True(t, scoring.IsLate(end.Add(time.Second), test))
}

func TestAssembleAttempt(t *testing.T) {
	test := &domain.Test{
		EndDate:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		PassingPercentage: 40,
		Questions: []domain.Question{
			{ProblemID: "a", Marks: 10},
			{ProblemID: "b", Marks: 30},
		},
	}
	byProblem := map[string]domain.QuestionResult{
		"a": scoring.ScoreQuestion("a", outcomes(2, 2), 10),
	}

	res := scoring.AssembleAttempt(test, "att", byProblem, test.EndDate)
	require.Len(t, res.Questions, 2)
	assert.Equal(t, "b", res.Questions[1].ProblemID)
	assert.Equal(t, 0, res.Questions[1].Score)
	assert.Equal(t, 10, res.TotalScore)
	assert.Equal(t, 40, res.MaxScore)
	assert.InDelta(t, 25.0, res.Percentage, 1e-9)
	assert.False(t, res.Passed)
	assert.False(t, res.IsLateSubmission)
}

func TestCaseAccuracy(t *testing.T) {
	oc := outcomes(1, 3)
	oc[2].ErrorKind = domain.TimeoutError

	a := scoring.CaseAccuracy(oc)
	assert.Equal(t, 1, a.Passed)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 1, a.ByKind[domain.WrongAnswer])
	assert.Equal(t, 1, a.ByKind[domain.TimeoutError])
	assert.False(t, scoring.NeedsRetry(oc))

	oc[1].ErrorKind = domain.InternalExecutionError
	assert.True(t, scoring.NeedsRetry(oc))
}
