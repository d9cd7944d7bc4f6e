// Package behave runs TOML behaviour scenarios against the grading harness
// and checks the overall status and per-case verdicts.
package behave

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/gatherer/respbuilder"
	"github.com/programme-lv/assessor/internal/harness"
	"github.com/programme-lv/assessor/internal/runner"
)

// SpecTest is a single test case in the behaviour file.
type SpecTest struct {
	In  string `toml:"in"`
	Ans string `toml:"ans"`
}

// SpecLanguage references a language by id. Inline fields override the
// referenced language or define a new one.
type SpecLanguage struct {
	LangID        string `toml:"lang_id"`
	CodeFname     string `toml:"code_fname"`
	CompileCmd    string `toml:"compile_cmd"`
	CompiledFname string `toml:"compiled_fname"`
	ExecCmd       string `toml:"exec_cmd"`
}

type SpecLimits struct {
	TimeMs int64 `toml:"time_ms"`
	RamKiB int64 `toml:"ram_kib"`
}

type SpecRequest struct {
	Code     string       `toml:"code"`
	Tests    []SpecTest   `toml:"tests"`
	Language SpecLanguage `toml:"language"`
	Limits   SpecLimits   `toml:"limits"`
}

// SpecTestVerdict is OK, WA, TLE, RE, CE or IE.
type SpecTestVerdict struct {
	Verdict string `toml:"verdict"`
}

type SpecExpect struct {
	Status      string            `toml:"status"`
	TestResults []SpecTestVerdict `toml:"test_results"`
}

// The request is written as an array of tables; only the first is used.
type specScenario struct {
	Description string        `toml:"description"`
	Requests    []SpecRequest `toml:"request"`
	Expect      SpecExpect    `toml:"expect"`
}

type specRoot struct {
	Scenarios []specScenario    `toml:"scenarios"`
	Languages []runner.Language `toml:"languages"`
}

// Case is a runnable scenario.
type Case struct {
	Name    string
	Request api.ExecReq
	Expect  SpecExpect
}

// Suite is a parsed behaviour file. Languages holds those defined in the
// file, including scenario-local ones.
type Suite struct {
	Languages []runner.Language
	Cases     []Case
}

func ParseFile(path string, base []runner.Language) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	return Parse(data, base)
}

// Parse converts a behaviour file into runnable cases. base resolves
// lang_id references not defined in the file.
func Parse(data []byte, base []runner.Language) (*Suite, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	known := make(map[string]runner.Language)
	for _, l := range base {
		known[l.ID] = l
	}
	suite := &Suite{}
	for _, l := range root.Languages {
		if l.ID == "" {
			return nil, fmt.Errorf("language without id in behaviour file")
		}
		known[l.ID] = l
		suite.Languages = append(suite.Languages, l)
	}

	for i, sc := range root.Scenarios {
		if len(sc.Requests) == 0 {
			return nil, fmt.Errorf("scenario %q is missing a request block", sc.Description)
		}
		req := sc.Requests[0]

		lang, local, err := resolveLanguage(req.Language, known, i)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", sc.Description, err)
		}
		if local {
			suite.Languages = append(suite.Languages, lang)
		}

		cases := make([]api.ExecCase, 0, len(req.Tests))
		for j, t := range req.Tests {
			cases = append(cases, api.ExecCase{ID: strconv.Itoa(j + 1), Input: t.In, ExpectedOutput: t.Ans})
		}
		suite.Cases = append(suite.Cases, Case{
			Name: sc.Description,
			Request: api.ExecReq{
				EvalUuid:       uuid.NewString(),
				Language:       lang.ID,
				Code:           req.Code,
				Cases:          cases,
				TimeLimitMs:    req.Limits.TimeMs,
				MemoryLimitKiB: req.Limits.RamKiB,
			},
			Expect: sc.Expect,
		})
	}
	return suite, nil
}

// resolveLanguage returns the language a scenario runs. Inline overrides
// produce a scenario-local language.
func resolveLanguage(spec SpecLanguage, known map[string]runner.Language, idx int) (runner.Language, bool, error) {
	var lang runner.Language
	if spec.LangID != "" {
		l, ok := known[spec.LangID]
		if !ok {
			return runner.Language{}, false, fmt.Errorf("unknown language id: %s", spec.LangID)
		}
		lang = l
	}
	overridden := false
	for dst, v := range map[*string]string{
		&lang.CodeFname:     spec.CodeFname,
		&lang.CompileCmd:    spec.CompileCmd,
		&lang.CompiledFname: spec.CompiledFname,
		&lang.ExecCmd:       spec.ExecCmd,
	} {
		if v != "" {
			*dst = v
			overridden = true
		}
	}
	if !overridden {
		return lang, false, nil
	}
	if lang.CodeFname == "" || lang.ExecCmd == "" {
		return runner.Language{}, false, fmt.Errorf("language definition incomplete; require code_fname and exec_cmd (lang_id=%q)", spec.LangID)
	}
	lang.ID = fmt.Sprintf("scenario-%d", idx+1)
	if spec.LangID != "" {
		lang.ID = spec.LangID + "-" + lang.ID
	}
	return lang, true, nil
}

// Catalog merges the suite's languages over base.
func (s *Suite) Catalog(base []runner.Language) (*runner.Catalog, error) {
	var langs []runner.Language
	defined := make(map[string]bool)
	for _, l := range s.Languages {
		defined[l.ID] = true
	}
	for _, l := range base {
		if !defined[l.ID] {
			langs = append(langs, l)
		}
	}
	return runner.NewCatalog(append(langs, s.Languages...))
}

type Outcome struct {
	Case     Case
	Response api.ExecResponse
	Elapsed  time.Duration
	// Problems lists every mismatch against the expectation.
	Problems []string
}

func (o Outcome) Passed() bool {
	return len(o.Problems) == 0
}

// Run grades every case with h. When watch is non-nil it receives each
// case's event stream.
func Run(ctx context.Context, h *harness.Harness, suite *Suite, watch func(Case) gatherer.Gatherer) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(suite.Cases))
	for _, c := range suite.Cases {
		rb := respbuilder.New(c.Request.EvalUuid)
		gath := gatherer.Gatherer(rb)
		if watch != nil {
			gath = gatherer.Multi(rb, watch(c))
		}
		start := time.Now()
		if _, err := h.Grade(ctx, specOf(c.Request), gath); err != nil {
			return outcomes, fmt.Errorf("scenario %q: %w", c.Name, err)
		}
		o := Outcome{Case: c, Response: rb.Response(), Elapsed: time.Since(start)}
		o.Problems = Check(c.Expect, o.Response)
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func specOf(req api.ExecReq) domain.SubmissionSpec {
	spec := domain.SubmissionSpec{
		LanguageID:     req.Language,
		Code:           req.Code,
		TimeLimit:      time.Duration(req.TimeLimitMs) * time.Millisecond,
		MemoryLimitKiB: req.MemoryLimitKiB,
	}
	for _, c := range req.Cases {
		spec.TestCases = append(spec.TestCases, domain.TestCase{ID: c.ID, Input: c.Input, ExpectedOutput: c.ExpectedOutput})
	}
	return spec
}

// Check compares a response with the expectation. An empty status or an
// empty verdict list is not checked.
func Check(exp SpecExpect, resp api.ExecResponse) []string {
	var problems []string
	if exp.Status != "" && !strings.EqualFold(exp.Status, string(resp.Status)) {
		problems = append(problems, fmt.Sprintf("status: expected %s, got %s", exp.Status, resp.Status))
	}
	if len(exp.TestResults) == 0 {
		return problems
	}
	if len(exp.TestResults) != len(resp.Results) {
		problems = append(problems, fmt.Sprintf("expected %d test results, got %d", len(exp.TestResults), len(resp.Results)))
		return problems
	}
	for i, want := range exp.TestResults {
		got := domain.ErrorKind(resp.Results[i].ErrorKind).Short()
		if !strings.EqualFold(want.Verdict, got) {
			problems = append(problems, fmt.Sprintf("test %d: expected %s, got %s", i+1, strings.ToUpper(want.Verdict), got))
		}
	}
	return problems
}
