package isolate

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Status values isolate writes to the meta file.
const (
	StatusOK            = ""
	StatusRuntimeError  = "RE"
	StatusSignaled      = "SG"
	StatusTimedOut      = "TO"
	StatusInternalError = "XX"
)

type Metrics struct {
	TimeSec      float64
	TimeWallSec  float64
	MaxRssKb     int64
	CswVoluntary int64
	CswForced    int64
	CgMemKb      int64
	ExitCode     int64
	ExitSignal   *int64
	Killed       bool
	CgOomKilled  bool
	Status       string
	Message      string
}

func parseMetaFile(content []byte) (*Metrics, error) {
	m := &Metrics{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		var err error
		switch key {
		case "time":
			m.TimeSec, err = strconv.ParseFloat(value, 64)
		case "time-wall":
			m.TimeWallSec, err = strconv.ParseFloat(value, 64)
		case "max-rss":
			m.MaxRssKb, err = strconv.ParseInt(value, 10, 64)
		case "csw-voluntary":
			m.CswVoluntary, err = strconv.ParseInt(value, 10, 64)
		case "csw-forced":
			m.CswForced, err = strconv.ParseInt(value, 10, 64)
		case "cg-mem":
			m.CgMemKb, err = strconv.ParseInt(value, 10, 64)
		case "exitcode":
			m.ExitCode, err = strconv.ParseInt(value, 10, 64)
		case "exitsig":
			var sig int64
			sig, err = strconv.ParseInt(value, 10, 64)
			m.ExitSignal = &sig
		case "killed":
			m.Killed = value == "1"
		case "cg-oom-killed":
			m.CgOomKilled = value == "1"
		case "status":
			m.Status = value
		case "message":
			m.Message = value
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse meta key %q: %w", key, err)
		}
	}
	return m, scanner.Err()
}
