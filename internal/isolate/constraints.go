package isolate

import (
	"strconv"
	"time"
)

// Constraints are the resource limits of one command run in a box.
type Constraints struct {
	CPUTime time.Duration
	// ExtraTime lets a program that ran over CPUTime finish before it is
	// killed, so that the overrun is measured.
	ExtraTime time.Duration
	WallTime  time.Duration
	// MemoryKiB is a cgroup limit covering every process of the run.
	MemoryKiB   int64
	Processes   int
	OpenFiles   int
	FileSizeKiB int64
}

func DefaultConstraints() Constraints {
	return Constraints{
		CPUTime:     50 * time.Second,
		ExtraTime:   500 * time.Millisecond,
		WallTime:    10 * time.Second,
		MemoryKiB:   2_048_000,
		Processes:   128,
		OpenFiles:   128,
		FileSizeKiB: 65_536,
	}
}

// WithTimeLimit returns c limited to cpu of CPU time. The wall clock
// allows wallFactor times that plus a second of startup.
func (c Constraints) WithTimeLimit(cpu time.Duration, wallFactor float64) Constraints {
	c.CPUTime = cpu
	c.WallTime = time.Duration(float64(cpu)*wallFactor) + time.Second
	return c
}

// Args renders c as isolate flags. Boxes never get --share-net.
func (c Constraints) Args() []string {
	return []string{
		"--cg-mem=" + strconv.FormatInt(c.MemoryKiB, 10),
		"--time=" + seconds(c.CPUTime),
		"--extra-time=" + seconds(c.ExtraTime),
		"--wall-time=" + seconds(c.WallTime),
		"--processes=" + strconv.Itoa(c.Processes),
		"--open-files=" + strconv.Itoa(c.OpenFiles),
		"--fsize=" + strconv.FormatInt(c.FileSizeKiB, 10),
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
