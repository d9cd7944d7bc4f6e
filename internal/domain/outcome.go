package domain

import "time"

// ErrorKind classifies why a test case did not pass. The empty kind means
// the case passed.
type ErrorKind string

const (
	NoError                ErrorKind = ""
	CompilationError       ErrorKind = "compilation_error"
	RuntimeError           ErrorKind = "runtime_error"
	TimeoutError           ErrorKind = "timeout_error"
	WrongAnswer            ErrorKind = "wrong_answer"
	InternalExecutionError ErrorKind = "internal_execution_error"
)

// UserCaused reports whether the failure is attributable to submitted code.
// Internal execution errors may be retried without penalizing the user.
func (k ErrorKind) UserCaused() bool {
	switch k {
	case CompilationError, RuntimeError, TimeoutError, WrongAnswer:
		return true
	}
	return false
}

// SubmissionSpec is the unit handed to the test harness.
type SubmissionSpec struct {
	LanguageID string
	Code       string
	TestCases  []TestCase

	// Zero values fall back to the harness defaults.
	TimeLimit      time.Duration
	MemoryLimitKiB int64
}

// TestCaseOutcome is the graded result of one test case.
type TestCaseOutcome struct {
	TestCaseID     string    `json:"test_case_id"`
	Order          int       `json:"order"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	ActualOutput   string    `json:"actual_output"`
	Stderr         string    `json:"stderr"`
	ExitCode       int64     `json:"exit_code"`
	Passed         bool      `json:"passed"`
	RuntimeMs      int64     `json:"runtime_ms"`
	CpuMs          int64     `json:"cpu_ms"`
	MemoryKiB      int64     `json:"memory_kib"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// QuestionResult aggregates the outcomes of one problem within one attempt.
type QuestionResult struct {
	ProblemID   string    `json:"problem_id"`
	TotalCases  int       `json:"total_cases"`
	PassedCases int       `json:"passed_cases"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	IsCorrect   bool      `json:"is_correct"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	LanguageID  string    `json:"language_id,omitempty"`

	Outcomes []TestCaseOutcome `json:"outcomes,omitempty"`
}

// AttemptResult is the scored roll-up of an attempt.
type AttemptResult struct {
	AttemptID        string           `json:"attempt_id"`
	TotalScore       int              `json:"total_score"`
	MaxScore         int              `json:"max_score"`
	Percentage       float64          `json:"percentage"`
	Passed           bool             `json:"passed"`
	IsLateSubmission bool             `json:"is_late_submission"`
	Questions        []QuestionResult `json:"questions"`
}

// Short is the judge abbreviation of the kind: OK, CE, RE, TLE, WA or IE.
func (k ErrorKind) Short() string {
	switch k {
	case CompilationError:
		return "CE"
	case RuntimeError:
		return "RE"
	case TimeoutError:
		return "TLE"
	case WrongAnswer:
		return "WA"
	case InternalExecutionError:
		return "IE"
	}
	return "OK"
}
