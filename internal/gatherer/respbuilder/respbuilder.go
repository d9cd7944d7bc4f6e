// Package respbuilder collects grading events into one api.ExecResponse.
package respbuilder

import (
	"time"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/runner"
)

// Builder gathers execution events and builds a complete api.ExecResponse.
type Builder struct {
	evalUuid   string
	systemInfo string

	started  time.Time
	finished *time.Time

	results []api.ExecCaseResult

	status       api.ExecStatus
	errorMessage *string
}

func New(evalUuid string) *Builder {
	return &Builder{
		evalUuid: evalUuid,
		started:  time.Now(),
		status:   api.Success,
	}
}

func (b *Builder) StartJob(systemInfo string) {
	b.systemInfo = systemInfo
}

func (b *Builder) StartCompile() {}

func (b *Builder) FinishCompile(*runner.CompileReport) {}

func (b *Builder) ReachTest(int, domain.TestCase) {}

// FinishTest places the outcome at its order; events may arrive out of order.
func (b *Builder) FinishTest(o domain.TestCaseOutcome) {
	for len(b.results) <= o.Order {
		b.results = append(b.results, api.ExecCaseResult{})
	}
	b.results[o.Order] = CaseResult(o)
}

func (b *Builder) CompileError(msg string) {
	b.status = api.CompileError
	b.errorMessage = &msg
	b.finish()
}

func (b *Builder) InternalError(msg string) {
	b.status = api.InternalError
	b.errorMessage = &msg
	b.finish()
}

func (b *Builder) FinishNoError() {
	b.finish()
}

func (b *Builder) finish() {
	now := time.Now()
	b.finished = &now
}

// Response builds the api.ExecResponse from gathered data.
func (b *Builder) Response() api.ExecResponse {
	total := int64(0)
	if b.finished != nil {
		total = b.finished.Sub(b.started).Milliseconds()
	}
	results := b.results
	if results == nil {
		results = []api.ExecCaseResult{}
	}
	resp := api.ExecResponse{
		EvalUuid:        b.evalUuid,
		Status:          b.status,
		Results:         results,
		Error:           b.errorMessage,
		ExecutionTimeMs: total,
	}
	if b.systemInfo != "" {
		info := b.systemInfo
		resp.SystemInfo = &info
	}
	return resp
}

// CaseResult maps an outcome onto the Execute wire shape.
func CaseResult(o domain.TestCaseOutcome) api.ExecCaseResult {
	r := api.ExecCaseResult{
		ID:        o.TestCaseID,
		Input:     o.Input,
		Output:    o.ActualOutput,
		Expected:  o.ExpectedOutput,
		Passed:    o.Passed,
		Stdout:    o.ActualOutput,
		Stderr:    o.Stderr,
		RuntimeMs: o.RuntimeMs,
		MemoryMb:  float64(o.MemoryKiB) / 1024,
		ErrorKind: string(o.ErrorKind),
	}
	if o.ErrorMessage != "" {
		msg := o.ErrorMessage
		r.Error = &msg
	}
	return r
}
