package api

import "time"

// MsgType is a message type for streaming responses
type MsgType string

const (
	StartJobMsg      MsgType = "job_start"
	StartCompileMsg  MsgType = "compile_start"
	FinishCompileMsg MsgType = "compile_finish"
	ReachTestMsg     MsgType = "test_reach"
	FinishTestMsg    MsgType = "test_finish"
	FinishJobMsg     MsgType = "job_finish"
)

// Streamed program text is cut to this rectangle.
const (
	MaxRuntimeDataHeight = 40
	MaxRuntimeDataWidth  = 80
)

// Header is the common header for all streaming response messages
type Header struct {
	EvalUuid string  `json:"eval_uuid"`
	MsgType  MsgType `json:"msg_type"`
}

// RuntimeData describes one process run inside the sandbox.
type RuntimeData struct {
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int64  `json:"exit"`

	CpuMillis     int64 `json:"cpu_ms"`
	WallMillis    int64 `json:"wall_ms"`
	MemoryKiBytes int64 `json:"mem_kib"`

	ExitSignal *int64 `json:"signal,omitempty"`
}

type StartJob struct {
	Header
	SystemInfo  string `json:"system_info"`
	StartedTime string `json:"started_time"`
}

type StartCompile struct {
	Header
}

type FinishCompile struct {
	Header
	RuntimeData *RuntimeData `json:"runtime_data"`
}

type ReachTest struct {
	Header
	Order  int     `json:"order"`
	TestId string  `json:"test_id"`
	Input  *string `json:"input"`
	Answer *string `json:"answer"`
}

type FinishTest struct {
	Header
	Order        int          `json:"order"`
	TestId       string       `json:"test_id"`
	Passed       bool         `json:"passed"`
	ErrorKind    string       `json:"error_kind,omitempty"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Submission   *RuntimeData `json:"submission"`
}

type FinishJob struct {
	Header
	ErrorMessage  *string `json:"error_message"`
	CompileError  bool    `json:"compile_error"`
	InternalError bool    `json:"internal_error"`
	PassedCases   int     `json:"passed_cases"`
	TotalCases    int     `json:"total_cases"`
}

func NewHeader(evalUuid string, msgType MsgType) Header {
	return Header{
		EvalUuid: evalUuid,
		MsgType:  msgType,
	}
}

func NewStartJob(evalUuid, systemInfo string) StartJob {
	return StartJob{
		Header:      NewHeader(evalUuid, StartJobMsg),
		SystemInfo:  systemInfo,
		StartedTime: time.Now().Format(time.RFC3339),
	}
}

func NewStartCompile(evalUuid string) StartCompile {
	return StartCompile{Header: NewHeader(evalUuid, StartCompileMsg)}
}

func NewFinishCompile(evalUuid string, runtimeData *RuntimeData) FinishCompile {
	return FinishCompile{
		Header:      NewHeader(evalUuid, FinishCompileMsg),
		RuntimeData: runtimeData,
	}
}

func NewReachTest(evalUuid string, order int, testId string, input, answer *string) ReachTest {
	return ReachTest{
		Header: NewHeader(evalUuid, ReachTestMsg),
		Order:  order,
		TestId: testId,
		Input:  input,
		Answer: answer,
	}
}

func NewFinishJob(evalUuid string, errorMessage *string, compileError, internalError bool) FinishJob {
	return FinishJob{
		Header:        NewHeader(evalUuid, FinishJobMsg),
		ErrorMessage:  errorMessage,
		CompileError:  compileError,
		InternalError: internalError,
	}
}
