// Package assessor wires the grading engine and the session state machine
// into the operations exposed by the transports.
package assessor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/programme-lv/assessor/internal/activity"
	"github.com/programme-lv/assessor/internal/content"
	"github.com/programme-lv/assessor/internal/harness"
	"github.com/programme-lv/assessor/internal/records"
	"github.com/programme-lv/assessor/internal/session"
)

var (
	// ErrBadRequest marks requests rejected before any grading started.
	ErrBadRequest = errors.New("bad request")
	// ErrGradingUnavailable means the sandbox kept failing; nothing was
	// recorded and the submission may be retried.
	ErrGradingUnavailable = errors.New("grading is temporarily unavailable")
	// ErrGradingCancelled means the attempt left the in-progress state
	// while its answer was being graded.
	ErrGradingCancelled = errors.New("grading cancelled: attempt is no longer in progress")
)

type Config struct {
	// Extra grading passes when a case fails for infrastructure reasons.
	GradingRetries int
	// Abandon in-progress attempts without activity for this long. Zero
	// disables the check.
	IdleAbandonAfter time.Duration
	MaxCases         int
	MaxCodeBytes     int
}

func DefaultConfig() Config {
	return Config{
		GradingRetries: 1,
		MaxCases:       200,
		MaxCodeBytes:   64 << 10,
	}
}

type Deps struct {
	Harness  *harness.Harness
	Machine  *session.Machine
	Content  content.Store
	Activity *activity.Recorder
	Ledger   records.Ledger
	Logger   *slog.Logger
}

type Service struct {
	harness  *harness.Harness
	machine  *session.Machine
	content  content.Store
	activity *activity.Recorder
	ledger   records.Ledger
	inflight *inflight
	cfg      Config
	logger   *slog.Logger
}

func New(d Deps, cfg Config) *Service {
	if d.Ledger == nil {
		d.Ledger = records.Nop()
	}
	if d.Activity == nil {
		d.Activity = activity.NewRecorder(d.Machine.Now)
	}
	return &Service{
		harness:  d.Harness,
		machine:  d.Machine,
		content:  d.Content,
		activity: d.Activity,
		ledger:   d.Ledger,
		inflight: newInflight(),
		cfg:      cfg,
		logger:   d.Logger,
	}
}

func (s *Service) Harness() *harness.Harness { return s.harness }
