package records_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRow(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	g := records.NewGrading("", "", "", domain.QuestionResult{
		ProblemID:   "sum",
		LanguageID:  "go",
		Score:       7,
		MaxScore:    10,
		PassedCases: 2,
		TotalCases:  3,
		ErrorKind:   domain.WrongAnswer,
		Outcomes:    []domain.TestCaseOutcome{{TestCaseID: "1", Passed: true}},
	}, at)

	row, err := records.ToRow(g)
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.Nil(t, row.AttemptID)
	require.NotNil(t, row.ErrorKind)
	assert.Equal(t, "wrong_answer", *row.ErrorKind)

	var outcomes []domain.TestCaseOutcome
	require.NoError(t, json.Unmarshal(row.Outcomes, &outcomes))
	assert.Len(t, outcomes, 1)

	empty, err := records.ToRow(records.NewGrading("a", "t", "u", domain.QuestionResult{}, at))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty.Outcomes))
	assert.Nil(t, empty.ErrorKind)
	assert.NotEqual(t, row.ID, empty.ID)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("ASSESSOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ASSESSOR_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := records.Open(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer pg.Close()

	attemptID := "test-" + time.Now().Format(time.RFC3339Nano)
	qr := domain.QuestionResult{ProblemID: "sum", LanguageID: "go", Score: 10, MaxScore: 10, IsCorrect: true}
	require.NoError(t, pg.RecordGrading(ctx, records.NewGrading(attemptID, "t", "u", qr, time.Now())))
	require.NoError(t, pg.RecordGrading(ctx, records.NewGrading(attemptID, "t", "u", qr, time.Now())))

	rows, err := pg.Gradings(ctx, attemptID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	now := time.Now()
	a := &domain.Attempt{ID: attemptID, TestID: "t", UserID: "u", AttemptNumber: 1,
		Status: domain.StatusSubmitted, StartedAt: now, CompletedAt: &now}
	require.NoError(t, pg.RecordAttempt(ctx, a, domain.AttemptResult{TotalScore: 10, MaxScore: 10},
		activity.Summary{Counts: map[activity.Kind]int64{activity.Run: 2}}))
}
