package gatherer

import (
	"strings"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/runner"
)

// TrimToRect keeps at most maxHeight lines of at most maxWidth bytes,
// marking every cut with "[...]".
func TrimToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if len(line) > maxWidth {
			sb.WriteString(line[:maxWidth])
			sb.WriteString("[...]")
		} else {
			sb.WriteString(line)
		}
	}
	return sb.String()
}

func trim(s string) string {
	return TrimToRect(s, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth)
}

// TrimmedPtr is TrimToRect with the stream rectangle, nil for empty input.
func TrimmedPtr(s string) *string {
	t := trim(s)
	if t == "" {
		return nil
	}
	return &t
}

// CompileData converts a compile report into trimmed stream form.
func CompileData(r *runner.CompileReport) *api.RuntimeData {
	if r == nil {
		return nil
	}
	return &api.RuntimeData{
		Stdout:        trim(r.Stdout),
		Stderr:        trim(r.Stderr),
		ExitCode:      r.ExitCode,
		WallMillis:    r.WallMs,
		MemoryKiBytes: r.MemoryKiB,
	}
}

// OutcomeData converts a graded case into trimmed stream form.
func OutcomeData(o domain.TestCaseOutcome) *api.RuntimeData {
	return &api.RuntimeData{
		Stdout:        trim(o.ActualOutput),
		Stderr:        trim(o.Stderr),
		ExitCode:      o.ExitCode,
		CpuMillis:     o.CpuMs,
		WallMillis:    o.RuntimeMs,
		MemoryKiBytes: o.MemoryKiB,
	}
}

// FinishTestMsg builds the stream message for a graded case.
func FinishTestMsg(evalUuid string, o domain.TestCaseOutcome) api.FinishTest {
	msg := api.FinishTest{
		Header:     api.NewHeader(evalUuid, api.FinishTestMsg),
		Order:      o.Order,
		TestId:     o.TestCaseID,
		Passed:     o.Passed,
		ErrorKind:  string(o.ErrorKind),
		Submission: OutcomeData(o),
	}
	if o.ErrorMessage != "" {
		m := o.ErrorMessage
		msg.ErrorMessage = &m
	}
	return msg
}

// Tally counts passed cases as FinishTest events arrive. Embedded by sinks
// that report totals in their job_finish message.
type Tally struct {
	Passed int
	Total  int
}

func (t *Tally) Add(o domain.TestCaseOutcome) {
	t.Total++
	if o.Passed {
		t.Passed++
	}
}

// FinishJobMsg builds the terminal stream message.
func (t Tally) FinishJobMsg(evalUuid string, errMsg *string, compileErr, internalErr bool) api.FinishJob {
	msg := api.NewFinishJob(evalUuid, errMsg, compileErr, internalErr)
	msg.PassedCases = t.Passed
	msg.TotalCases = t.Total
	return msg
}
