package api

import "time"

type StartReq struct {
	TestID string `json:"testId"`
	UserID string `json:"userId"`
}

type StartResponse struct {
	AttemptID     string    `json:"attemptId"`
	AttemptNumber int       `json:"attemptNumber"`
	StartedAt     time.Time `json:"startedAt"`
	Deadline      time.Time `json:"deadline"`
}

type QuestionSubmission struct {
	ProblemID string `json:"problemId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

type SubmitQuestionReq struct {
	QuestionSubmission
}

type SubmitReq struct {
	Questions []QuestionSubmission `json:"questionSubmissions"`
}

type QuestionScore struct {
	ProblemID   string `json:"problemId"`
	TotalCases  int    `json:"totalCases"`
	PassedCases int    `json:"passedCases"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"maxScore"`
	IsCorrect   bool   `json:"isCorrect"`
	ErrorKind   string `json:"errorKind,omitempty"`
}

type SubmitResponse struct {
	AttemptID        string          `json:"attemptId"`
	Status           string          `json:"status"`
	TotalScore       int             `json:"totalScore"`
	MaxScore         int             `json:"maxScore"`
	Percentage       float64         `json:"percentage"`
	Passed           bool            `json:"passed"`
	IsLateSubmission bool            `json:"isLateSubmission"`
	PerQuestion      []QuestionScore `json:"perQuestion"`
}

// StatusResponse describes the caller's standing on one test. Score fields
// are omitted while results are unpublished.
type StatusResponse struct {
	TestID           string     `json:"testId"`
	UserID           string     `json:"userId"`
	Status           string     `json:"status"`
	AttemptID        string     `json:"attemptId,omitempty"`
	AttemptStatus    string     `json:"attemptStatus,omitempty"`
	AttemptsUsed     int        `json:"attemptsUsed"`
	CanStart         bool       `json:"canStart"`
	CanEnd           bool       `json:"canEnd"`
	IsExpired        bool       `json:"isExpired"`
	TimeSpentMinutes int64      `json:"timeSpentMinutes"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	RemainingSeconds int64      `json:"remainingSeconds"`
	Published        bool       `json:"published"`
	TotalScore       *int       `json:"totalScore,omitempty"`
	MaxScore         *int       `json:"maxScore,omitempty"`
	Percentage       *float64   `json:"percentage,omitempty"`
}

type ViolationReq struct {
	Kind string `json:"kind"`
}

type ViolationResponse struct {
	AttemptID      string `json:"attemptId"`
	ViolationCount int    `json:"violationCount"`
	Status         string `json:"status"`
}

type AbandonReq struct {
	Reason string `json:"reason"`
}

type ActivityReq struct {
	Kind     string `json:"kind"`
	Language string `json:"language,omitempty"`
}

// AttemptView is an attempt as shown to clients.
type AttemptView struct {
	AttemptID        string     `json:"attemptId"`
	TestID           string     `json:"testId"`
	UserID           string     `json:"userId"`
	AttemptNumber    int        `json:"attemptNumber"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	TimeSpentMinutes int64      `json:"timeSpentMinutes"`
	IsLateSubmission bool       `json:"isLateSubmission"`
	ViolationCount   int        `json:"violationCount"`
}
