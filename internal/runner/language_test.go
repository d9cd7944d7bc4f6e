package runner_test

import (
	"testing"

	"github.com/programme-lv/assessor/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	c, err := runner.NewCatalog(runner.DefaultLanguages())
	require.NoError(t, err)

	py, err := c.Get("python3")
	require.NoError(t, err)
	assert.False(t, py.Compiled())

	cpp, err := c.Get("cpp17")
	require.NoError(t, err)
	assert.True(t, cpp.Compiled())

	_, err = c.Get("cobol")
	assert.ErrorIs(t, err, runner.ErrUnknownLanguage)

	assert.Equal(t, len(runner.DefaultLanguages()), len(c.All()))
	assert.Equal(t, c.IDs()[0], c.All()[0].ID)
}

func TestCatalog_RejectsInvalid(t *testing.T) {
	_, err := runner.NewCatalog([]runner.Language{shell, shell})
	assert.Error(t, err)

	_, err = runner.NewCatalog([]runner.Language{{ID: "x", CodeFname: "x"}})
	assert.Error(t, err)

	_, err = runner.NewCatalog([]runner.Language{{ID: "x", CodeFname: "x", ExecCmd: "./x", CompileCmd: "cc x"}})
	assert.Error(t, err)
}
