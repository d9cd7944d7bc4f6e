// Package scoring rolls test case outcomes up into question and attempt
// scores.
package scoring

import (
	"time"

	"github.com/programme-lv/assessor/internal/domain"
)

// RoundHalfUp returns num/den rounded to the nearest integer, halves up.
// Both arguments must be non-negative and den positive.
func RoundHalfUp(num, den int) int {
	return (2*num + den) / (2 * den)
}

// ScoreQuestion aggregates the outcomes of one problem. The question's
// error kind is that of the first failing case in order.
func ScoreQuestion(problemID string, outcomes []domain.TestCaseOutcome, maxScore int) domain.QuestionResult {
	qr := domain.QuestionResult{
		ProblemID:  problemID,
		TotalCases: len(outcomes),
		MaxScore:   maxScore,
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		if o.Passed {
			qr.PassedCases++
		} else if qr.ErrorKind == domain.NoError {
			qr.ErrorKind = o.ErrorKind
		}
	}
	if qr.TotalCases > 0 {
		qr.Score = RoundHalfUp(maxScore*qr.PassedCases, qr.TotalCases)
	}
	qr.IsCorrect = qr.TotalCases > 0 && qr.PassedCases == qr.TotalCases
	return qr
}

// Unattempted is the result of a question nothing was submitted for.
func Unattempted(q domain.Question) domain.QuestionResult {
	return domain.QuestionResult{ProblemID: q.ProblemID, MaxScore: q.Marks}
}

type Totals struct {
	TotalScore int
	MaxScore   int
	Percentage float64
}

// ScoreAttempt sums question scores. Percentage is 0 when MaxScore is 0.
func ScoreAttempt(results []domain.QuestionResult) Totals {
	var t Totals
	for _, r := range results {
		t.TotalScore += r.Score
		t.MaxScore += r.MaxScore
	}
	t.Percentage = Percentage(t.TotalScore, t.MaxScore)
	return t
}

func Percentage(score, max int) float64 {
	if max == 0 {
		return 0
	}
	return float64(score) / float64(max) * 100
}

// IsLate reports whether a hand-in at submittedAt is past the test end.
// Submitting exactly at the end date is on time.
func IsLate(submittedAt time.Time, t *domain.Test) bool {
	return submittedAt.After(t.EndDate)
}

// AssembleAttempt builds the attempt result in test question order. byProblem
// holds the latest result per problem; questions without one count as
// unattempted.
func AssembleAttempt(
	t *domain.Test,
	attemptID string,
	byProblem map[string]domain.QuestionResult,
	submittedAt time.Time,
) domain.AttemptResult {
	results := make([]domain.QuestionResult, 0, len(t.Questions))
	for _, q := range t.Questions {
		r, ok := byProblem[q.ProblemID]
		if !ok {
			r = Unattempted(q)
		}
		results = append(results, r)
	}
	totals := ScoreAttempt(results)
	return domain.AttemptResult{
		AttemptID:        attemptID,
		TotalScore:       totals.TotalScore,
		MaxScore:         totals.MaxScore,
		Percentage:       totals.Percentage,
		Passed:           totals.MaxScore > 0 && totals.Percentage >= t.PassingPercentage,
		IsLateSubmission: IsLate(submittedAt, t),
		Questions:        results,
	}
}
