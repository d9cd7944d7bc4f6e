package isolate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetaFile(t *testing.T) {
	meta := []byte("time:0.012\ntime-wall:0.034\nmax-rss:3120\ncsw-voluntary:2\ncsw-forced:1\ncg-mem:2048\nexitcode:3\nstatus:RE\nmessage:Exited with error status 3\n")

	m, err := parseMetaFile(meta)
	require.NoError(t, err)

	assert.InDelta(t, 0.012, m.TimeSec, 1e-9)
	assert.InDelta(t, 0.034, m.TimeWallSec, 1e-9)
	assert.Equal(t, int64(3120), m.MaxRssKb)
	assert.Equal(t, int64(2048), m.CgMemKb)
	assert.Equal(t, int64(3), m.ExitCode)
	assert.Equal(t, StatusRuntimeError, m.Status)
	assert.Equal(t, "Exited with error status 3", m.Message)
	assert.Nil(t, m.ExitSignal)
}

func TestParseMetaFile_SignalAndOom(t *testing.T) {
	m, err := parseMetaFile([]byte("exitsig:9\nkilled:1\ncg-oom-killed:1\nstatus:SG\n"))
	require.NoError(t, err)

	require.NotNil(t, m.ExitSignal)
	assert.Equal(t, int64(9), *m.ExitSignal)
	assert.True(t, m.Killed)
	assert.True(t, m.CgOomKilled)
	assert.Equal(t, StatusSignaled, m.Status)
}

func TestParseMetaFile_BadNumber(t *testing.T) {
	_, err := parseMetaFile([]byte("time:abc\n"))
	assert.Error(t, err)
}

func TestConstraintsArgs(t *testing.T) {
	c := Constraints{
		CPUTime:     time.Second,
		ExtraTime:   500 * time.Millisecond,
		WallTime:    3 * time.Second,
		MemoryKiB:   262144,
		Processes:   64,
		OpenFiles:   32,
		FileSizeKiB: 1024,
	}
	assert.Equal(t, []string{
		"--cg-mem=262144",
		"--time=1.000",
		"--extra-time=0.500",
		"--wall-time=3.000",
		"--processes=64",
		"--open-files=32",
		"--fsize=1024",
	}, c.Args())

	run := DefaultConstraints().WithTimeLimit(1500*time.Millisecond, 2)
	assert.Equal(t, 1500*time.Millisecond, run.CPUTime)
	assert.Equal(t, 4*time.Second, run.WallTime)
	assert.Equal(t, DefaultConstraints().MemoryKiB, run.MemoryKiB)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", b.String())
}

func TestReserveIdReusesReleasedIds(t *testing.T) {
	i := New("isolate", 2)
	a, err := i.reserveId()
	require.NoError(t, err)
	b, err := i.reserveId()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = i.reserveId()
	assert.ErrorIs(t, err, ErrNoFreeBox)

	i.releaseId(a)
	c, err := i.reserveId()
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.Equal(t, 2, i.InUse())
}
