package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/assessor"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/harness"
	"github.com/programme-lv/assessor/internal/runner"
	"github.com/programme-lv/assessor/internal/session"
	"github.com/programme-lv/assessor/internal/transport/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRunner prints its stdin.
type echoRunner struct{}

func (echoRunner) Compile(_ context.Context, lang runner.Language, code string) (*runner.Program, error) {
	return &runner.Program{Language: lang}, nil
}

func (echoRunner) Run(_ context.Context, _ *runner.Program, stdin []byte, _ runner.Limits) (*runner.RunResult, error) {
	return &runner.RunResult{Status: runner.StatusOK, Stdout: string(stdin)}, nil
}

type content struct {
	test    *domain.Test
	problem *domain.Problem
}

func (c content) Problem(_ context.Context, id string) (*domain.Problem, error) {
	if id != c.problem.ID {
		return nil, fmt.Errorf("problem %s: %w", id, domain.ErrNotFound)
	}
	return c.problem, nil
}

func (c content) Test(_ context.Context, id string) (*domain.Test, error) {
	if id != c.test.ID {
		return nil, fmt.Errorf("test %s: %w", id, domain.ErrNotFound)
	}
	return c.test, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog, err := runner.NewCatalog([]runner.Language{{ID: "echo", CodeFname: "main", ExecCmd: "run"}})
	require.NoError(t, err)
	h := harness.New(echoRunner{}, catalog, harness.NewPool(2), harness.DefaultConfig(), logger)

	now := time.Now()
	c := content{
		test: &domain.Test{
			ID:                           "t1",
			StartDate:                    now.Add(-time.Hour),
			EndDate:                      now.Add(time.Hour),
			DurationMinutes:              30,
			IsResultPublishAutomatically: true,
			Questions:                    []domain.Question{{ProblemID: "p1", Marks: 10}},
		},
		problem: &domain.Problem{ID: "p1", TestCases: []domain.TestCase{
			{ID: "1", Input: "a", ExpectedOutput: "a"},
		}},
	}
	svc := assessor.New(assessor.Deps{
		Harness: h,
		Machine: session.NewMachine(session.NewMemoryStore(), logger),
		Content: c,
		Logger:  logger,
	}, assessor.DefaultConfig())

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(svc, logger)))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestExecute(t *testing.T) {
	srv := newServer(t)
	var resp api.ExecResponse
	code := post(t, srv.URL+"/api/execute", api.ExecReq{
		Language: "echo",
		Code:     "x",
		Cases:    []api.ExecCase{{Input: "1", ExpectedOutput: "1"}, {Input: "2", ExpectedOutput: "3"}},
	}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Passed)
	assert.False(t, resp.Results[1].Passed)
	assert.Equal(t, string(domain.WrongAnswer), resp.Results[1].ErrorKind)
}

func TestExecute_UnknownLanguage(t *testing.T) {
	srv := newServer(t)
	var resp api.ErrorResponse
	code := post(t, srv.URL+"/api/execute", api.ExecReq{Language: "cobol", Code: "x"}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, assessor.CodeBadRequest, resp.Code)
}

func TestAttemptLifecycle(t *testing.T) {
	srv := newServer(t)

	var start api.StartResponse
	require.Equal(t, http.StatusCreated, post(t, srv.URL+"/api/tests/t1/start", api.StartReq{UserID: "u1"}, &start))
	assert.Equal(t, 1, start.AttemptNumber)

	var errResp api.ErrorResponse
	assert.Equal(t, http.StatusConflict, post(t, srv.URL+"/api/tests/t1/start", api.StartReq{UserID: "u1"}, &errResp))
	assert.Equal(t, assessor.CodeInvalidTransition, errResp.Code)

	assert.Equal(t, http.StatusNoContent,
		post(t, srv.URL+"/api/attempts/"+start.AttemptID+"/activity", api.ActivityReq{Kind: "save"}, nil))

	var sub api.SubmitResponse
	require.Equal(t, http.StatusOK, post(t, srv.URL+"/api/attempts/"+start.AttemptID+"/submit", api.SubmitReq{
		Questions: []api.QuestionSubmission{{ProblemID: "p1", Language: "echo", Code: "x"}},
	}, &sub))
	assert.Equal(t, 10, sub.TotalScore)
	assert.InDelta(t, 100.0, sub.Percentage, 0.001)

	resp, err := http.Get(srv.URL + "/api/tests/t1/status?userId=u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st api.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.CanStart)
	require.NotNil(t, st.TotalScore)
	assert.Equal(t, 10, *st.TotalScore)
}

func TestNotFound(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/api/attempts/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
