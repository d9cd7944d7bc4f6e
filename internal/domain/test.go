package domain

import (
	"fmt"
	"time"
)

// TestKind says what a test is used for in the assignment system.
type TestKind string

const (
	// Practice tests are self-paced and never contribute to grades.
	KindPractice TestKind = "practice"
	// Assessment tests are graded by an instructor or recruiter.
	KindAssessment TestKind = "assessment"
	// Contest tests are ranked against other participants.
	KindContest TestKind = "contest"
	// Custom tests are assembled ad hoc for a single assignee group.
	KindCustom TestKind = "custom"
)

// DeliveryMode says how a test is supervised.
type DeliveryMode string

const (
	ModeStandard  DeliveryMode = "standard"
	ModeProctored DeliveryMode = "proctored"
)

func (k *TestKind) UnmarshalText(b []byte) error {
	switch TestKind(b) {
	case KindPractice, KindAssessment, KindContest, KindCustom:
		*k = TestKind(b)
		return nil
	case "":
		*k = KindAssessment
		return nil
	}
	return fmt.Errorf("unknown test kind %q", string(b))
}

func (m *DeliveryMode) UnmarshalText(b []byte) error {
	switch DeliveryMode(b) {
	case ModeStandard, ModeProctored:
		*m = DeliveryMode(b)
		return nil
	case "":
		*m = ModeStandard
		return nil
	}
	return fmt.Errorf("unknown delivery mode %q", string(b))
}

// Question is a problem as it appears within a test.
type Question struct {
	ProblemID      string `json:"problem_id" toml:"problem_id"`
	Marks          int    `json:"marks" toml:"marks"`
	TimeLimitMs    int64  `json:"time_limit_ms" toml:"time_limit_ms"`
	MemoryLimitKiB int64  `json:"memory_limit_kib" toml:"memory_limit_kib"`
}

type Test struct {
	ID    string       `json:"id" toml:"id"`
	Title string       `json:"title" toml:"title"`
	Kind  TestKind     `json:"kind" toml:"kind"`
	Mode  DeliveryMode `json:"mode" toml:"mode"`

	StartDate       time.Time `json:"start_date" toml:"start_date"`
	EndDate         time.Time `json:"end_date" toml:"end_date"`
	DurationMinutes int       `json:"duration_minutes" toml:"duration_minutes"`
	TotalMarks      int       `json:"total_marks" toml:"total_marks"`

	AllowMultipleAttempts bool `json:"allow_multiple_attempts" toml:"allow_multiple_attempts"`
	MaxAttempts           int  `json:"max_attempts" toml:"max_attempts"`

	ApplyBreachRule bool `json:"apply_breach_rule" toml:"apply_breach_rule"`
	BreachRuleLimit int  `json:"breach_rule_limit" toml:"breach_rule_limit"`

	IsResultPublishAutomatically bool    `json:"is_result_publish_automatically" toml:"is_result_publish_automatically"`
	PassingPercentage            float64 `json:"passing_percentage" toml:"passing_percentage"`

	Questions []Question `json:"questions" toml:"questions"`
}

// Validate checks the invariants every test must hold.
func (t *Test) Validate() error {
	if !t.StartDate.Before(t.EndDate) {
		return fmt.Errorf("%w: test %s start date %s is not before end date %s",
			ErrInvalidTest, t.ID, t.StartDate.Format(time.RFC3339), t.EndDate.Format(time.RFC3339))
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("%w: test %s duration must be positive, got %d",
			ErrInvalidTest, t.ID, t.DurationMinutes)
	}
	if t.ApplyBreachRule && t.BreachRuleLimit <= 0 {
		return fmt.Errorf("%w: test %s applies the breach rule with limit %d",
			ErrInvalidTest, t.ID, t.BreachRuleLimit)
	}
	return nil
}

// Question returns the question for the problem, if the test contains it.
func (t *Test) Question(problemID string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ProblemID == problemID {
			return q, true
		}
	}
	return Question{}, false
}

// Deadline is the time an attempt started at startedAt is expected to be
// handed in: the end of its duration, capped by the test end date.
func (t *Test) Deadline(startedAt time.Time) time.Time {
	d := startedAt.Add(time.Duration(t.DurationMinutes) * time.Minute)
	if d.After(t.EndDate) {
		return t.EndDate
	}
	return d
}

// AttemptLimit is the number of attempts a user may start.
func (t *Test) AttemptLimit() int {
	if !t.AllowMultipleAttempts {
		return 1
	}
	return t.MaxAttempts
}
