package api

type ExecStatus string

const (
	Success       ExecStatus = "success"
	CompileError  ExecStatus = "compile_error"
	InternalError ExecStatus = "internal_error"
)

// ExecCaseResult is the outcome of one case, in request order.
type ExecCaseResult struct {
	ID       string `json:"id,omitempty"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Expected string `json:"expected"`
	Passed   bool   `json:"passed"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`

	RuntimeMs int64   `json:"runtimeMs"`
	MemoryMb  float64 `json:"memoryMb"`

	ErrorKind string  `json:"errorKind,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// ExecResponse is the complete, non-streaming answer to an ExecReq.
type ExecResponse struct {
	EvalUuid string     `json:"eval_uuid"`
	Status   ExecStatus `json:"status"`

	Results []ExecCaseResult `json:"results"`

	// Set when compilation or the sandbox failed for the whole job.
	Error *string `json:"error,omitempty"`

	ExecutionTimeMs int64 `json:"executionTimeMs"`

	SystemInfo *string `json:"system_info,omitempty"`
}

// ErrorResponse is returned by the HTTP and NATS transports on request errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
