package api

// ExecReq asks for one submission to be run against a list of cases.
// Cases are graded in the order given.
type ExecReq struct {
	EvalUuid string `json:"eval_uuid,omitempty"`

	Language string     `json:"language"`
	Code     string     `json:"code"`
	Cases    []ExecCase `json:"testCases"`

	// Zero means the configured default.
	TimeLimitMs    int64 `json:"timeLimitMs,omitempty"`
	MemoryLimitKiB int64 `json:"memoryLimitKib,omitempty"`

	// Counts the run against an attempt's activity when set.
	AttemptID string `json:"attemptId,omitempty"`

	// Queue that receives stream messages when the request arrives over SQS.
	ResSqsUrl string `json:"res_sqs_url,omitempty"`
}

type ExecCase struct {
	ID             string `json:"id,omitempty"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}
