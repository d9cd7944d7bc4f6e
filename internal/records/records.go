// Package records appends grading passes and finished attempts to an
// external ledger. Rows are never updated; a regrade is a new row.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/domain"
)

// Grading is one grading pass of one question.
type Grading struct {
	ID        string
	AttemptID string
	TestID    string
	UserID    string
	Result    domain.QuestionResult
	GradedAt  time.Time
}

type Ledger interface {
	RecordGrading(ctx context.Context, g Grading) error
	RecordAttempt(ctx context.Context, a *domain.Attempt, res domain.AttemptResult, act activity.Summary) error
}

// NewGrading stamps a grading pass with a fresh id.
func NewGrading(attemptID, testID, userID string, qr domain.QuestionResult, at time.Time) Grading {
	return Grading{
		ID:        uuid.NewString(),
		AttemptID: attemptID,
		TestID:    testID,
		UserID:    userID,
		Result:    qr,
		GradedAt:  at,
	}
}

type nopLedger struct{}

// Nop discards every record.
func Nop() Ledger { return nopLedger{} }

func (nopLedger) RecordGrading(context.Context, Grading) error { return nil }

func (nopLedger) RecordAttempt(context.Context, *domain.Attempt, domain.AttemptResult, activity.Summary) error {
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS gradings (
	id            UUID PRIMARY KEY,
	attempt_id    TEXT,
	test_id       TEXT,
	user_id       TEXT,
	problem_id    TEXT NOT NULL,
	language_id   TEXT NOT NULL,
	score         INTEGER NOT NULL,
	max_score     INTEGER NOT NULL,
	passed_cases  INTEGER NOT NULL,
	total_cases   INTEGER NOT NULL,
	is_correct    BOOLEAN NOT NULL,
	error_kind    TEXT,
	outcomes      JSONB NOT NULL,
	graded_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS gradings_attempt_idx ON gradings (attempt_id);

CREATE TABLE IF NOT EXISTS attempt_records (
	id                 BIGSERIAL PRIMARY KEY,
	attempt_id         TEXT NOT NULL,
	test_id            TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	attempt_number     INTEGER NOT NULL,
	status             TEXT NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	total_score        INTEGER NOT NULL,
	max_score          INTEGER NOT NULL,
	percentage         DOUBLE PRECISION NOT NULL,
	time_spent_minutes INTEGER NOT NULL,
	is_late_submission BOOLEAN NOT NULL,
	violation_count    INTEGER NOT NULL,
	activity           JSONB NOT NULL,
	recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type GradingRow struct {
	ID          string    `db:"id"`
	AttemptID   *string   `db:"attempt_id"`
	TestID      *string   `db:"test_id"`
	UserID      *string   `db:"user_id"`
	ProblemID   string    `db:"problem_id"`
	LanguageID  string    `db:"language_id"`
	Score       int       `db:"score"`
	MaxScore    int       `db:"max_score"`
	PassedCases int       `db:"passed_cases"`
	TotalCases  int       `db:"total_cases"`
	IsCorrect   bool      `db:"is_correct"`
	ErrorKind   *string   `db:"error_kind"`
	Outcomes    []byte    `db:"outcomes"`
	GradedAt    time.Time `db:"graded_at"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ToRow flattens a grading for storage.
func ToRow(g Grading) (GradingRow, error) {
	outcomes, err := json.Marshal(g.Result.Outcomes)
	if err != nil {
		return GradingRow{}, fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	if g.Result.Outcomes == nil {
		outcomes = []byte("[]")
	}
	return GradingRow{
		ID:          g.ID,
		AttemptID:   nullable(g.AttemptID),
		TestID:      nullable(g.TestID),
		UserID:      nullable(g.UserID),
		ProblemID:   g.Result.ProblemID,
		LanguageID:  g.Result.LanguageID,
		Score:       g.Result.Score,
		MaxScore:    g.Result.MaxScore,
		PassedCases: g.Result.PassedCases,
		TotalCases:  g.Result.TotalCases,
		IsCorrect:   g.Result.IsCorrect,
		ErrorKind:   nullable(string(g.Result.ErrorKind)),
		Outcomes:    outcomes,
		GradedAt:    g.GradedAt,
	}, nil
}

// Postgres is a Ledger backed by PostgreSQL.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to dsn and creates the ledger tables when missing.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) RecordGrading(ctx context.Context, g Grading) error {
	row, err := ToRow(g)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO gradings (
			id, attempt_id, test_id, user_id, problem_id, language_id,
			score, max_score, passed_cases, total_cases, is_correct,
			error_kind, outcomes, graded_at
		) VALUES (
			:id, :attempt_id, :test_id, :user_id, :problem_id, :language_id,
			:score, :max_score, :passed_cases, :total_cases, :is_correct,
			:error_kind, :outcomes, :graded_at
		)`
	if _, err := p.db.NamedExecContext(ctx, query, row); err != nil {
		p.logger.Error("failed to record grading", "grading_id", g.ID, "error", err)
		return fmt.Errorf("failed to record grading: %w", err)
	}
	return nil
}

func (p *Postgres) RecordAttempt(ctx context.Context, a *domain.Attempt, res domain.AttemptResult, act activity.Summary) error {
	actJSON, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	query := `
		INSERT INTO attempt_records (
			attempt_id, test_id, user_id, attempt_number, status, started_at,
			completed_at, total_score, max_score, percentage, time_spent_minutes,
			is_late_submission, violation_count, activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = p.db.ExecContext(ctx, query,
		a.ID, a.TestID, a.UserID, a.AttemptNumber, string(a.Status), a.StartedAt,
		a.CompletedAt, res.TotalScore, res.MaxScore, res.Percentage, a.TimeSpentMinutes,
		a.IsLateSubmission, a.ViolationCount, actJSON,
	)
	if err != nil {
		p.logger.Error("failed to record attempt", "attempt_id", a.ID, "error", err)
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Gradings lists the grading passes of an attempt, oldest first.
func (p *Postgres) Gradings(ctx context.Context, attemptID string) ([]GradingRow, error) {
	var rows []GradingRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM gradings WHERE attempt_id = $1 ORDER BY graded_at`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gradings: %w", err)
	}
	return rows, nil
}
