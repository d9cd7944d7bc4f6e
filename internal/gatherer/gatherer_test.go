package gatherer_test

import (
	"strings"
	"testing"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/gatherer/respbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimToRect(t *testing.T) {
	tests := []struct {
		name string
		in   string
		h, w int
		want string
	}{
		{"empty", "", 2, 3, ""},
		{"fits", "ab\ncd", 2, 3, "ab\ncd"},
		{"too wide", "abcdef", 2, 3, "abc[...]"},
		{"too tall", "a\nb\nc", 2, 3, "a\nb\n[...]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gatherer.TrimToRect(tt.in, tt.h, tt.w))
		})
	}
}

func TestMulti_FansOutToBuilders(t *testing.T) {
	a, b := respbuilder.New("a"), respbuilder.New("b")
	g := gatherer.Locked(gatherer.Multi(a, b))

	g.StartJob("")
	g.FinishTest(domain.TestCaseOutcome{Order: 1, TestCaseID: "2", Passed: true})
	g.FinishTest(domain.TestCaseOutcome{Order: 0, TestCaseID: "1", ErrorKind: domain.WrongAnswer})
	g.FinishNoError()

	for _, rb := range []*respbuilder.Builder{a, b} {
		resp := rb.Response()
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "1", resp.Results[0].ID)
		assert.Equal(t, "2", resp.Results[1].ID)
		assert.True(t, resp.Results[1].Passed)
	}
	assert.Equal(t, "a", a.Response().EvalUuid)
}

func TestRespBuilder_CompileError(t *testing.T) {
	b := respbuilder.New("x")
	b.FinishTest(domain.TestCaseOutcome{
		Order:        0,
		ErrorKind:    domain.CompilationError,
		ErrorMessage: "main.cpp:1: error",
	})
	b.CompileError("main.cpp:1: error")

	resp := b.Response()
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "compile_error", string(resp.Status))
	require.NotNil(t, resp.Error)
	assert.True(t, strings.HasPrefix(*resp.Error, "main.cpp"))
	assert.Equal(t, "compilation_error", resp.Results[0].ErrorKind)
	assert.False(t, resp.Results[0].Passed)
}

func TestRespBuilder_MemoryInMegabytes(t *testing.T) {
	r := respbuilder.CaseResult(domain.TestCaseOutcome{MemoryKiB: 2048, ActualOutput: "5\n"})
	assert.Equal(t, 2.0, r.MemoryMb)
	assert.Equal(t, "5\n", r.Output)
	assert.Nil(t, r.Error)
}
