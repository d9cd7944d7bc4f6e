package domain

// TestCase is one hidden input/answer pair of a problem. The position of a
// test case in Problem.TestCases is its reporting order.
type TestCase struct {
	ID             string `json:"id" toml:"id"`
	ProblemID      string `json:"problem_id" toml:"-"`
	Input          string `json:"input" toml:"input"`
	ExpectedOutput string `json:"expected_output" toml:"expected_output"`
}

// StarterCode is the code a candidate starts from in one language.
type StarterCode struct {
	LanguageID string `json:"language_id" toml:"language_id"`
	Code       string `json:"code" toml:"code"`
}

// Problem is read-only during grading.
type Problem struct {
	ID           string `json:"id" toml:"id"`
	Title        string `json:"title" toml:"title"`
	Statement    string `json:"statement" toml:"statement"`
	InputFormat  string `json:"input_format" toml:"input_format"`
	OutputFormat string `json:"output_format" toml:"output_format"`
	Constraints  string `json:"constraints" toml:"constraints"`

	// Zero means the engine default applies.
	TimeLimitMs    int64 `json:"time_limit_ms" toml:"time_limit_ms"`
	MemoryLimitKiB int64 `json:"memory_limit_kib" toml:"memory_limit_kib"`

	TestCases   []TestCase    `json:"test_cases" toml:"test_cases"`
	StarterCode []StarterCode `json:"starter_code" toml:"starter_code"`
}

// StarterFor returns the starter code for the language, if the problem has one.
func (p *Problem) StarterFor(languageID string) (string, bool) {
	for _, sc := range p.StarterCode {
		if sc.LanguageID == languageID {
			return sc.Code, true
		}
	}
	return "", false
}
