package natsgath

import (
	"log/slog"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/gatherer"
	"github.com/programme-lv/assessor/internal/runner"
)

// publisher is the part of *nats.Conn the gatherer uses.
type publisher interface {
	Publish(subj string, data []byte) error
}

type natsGatherer struct {
	pub      publisher
	inbox    string
	evalUuid string
	logger   *slog.Logger
	tally    gatherer.Tally
}

func (s *natsGatherer) StartJob(systemInfo string) {
	s.send(api.NewStartJob(s.evalUuid, systemInfo))
}

func (s *natsGatherer) StartCompile() {
	s.send(api.NewStartCompile(s.evalUuid))
}

func (s *natsGatherer) FinishCompile(report *runner.CompileReport) {
	s.send(api.NewFinishCompile(s.evalUuid, gatherer.CompileData(report)))
}

func (s *natsGatherer) ReachTest(order int, tc domain.TestCase) {
	s.send(api.NewReachTest(s.evalUuid, order, tc.ID,
		gatherer.TrimmedPtr(tc.Input), gatherer.TrimmedPtr(tc.ExpectedOutput)))
}

func (s *natsGatherer) FinishTest(o domain.TestCaseOutcome) {
	s.tally.Add(o)
	s.send(gatherer.FinishTestMsg(s.evalUuid, o))
}

func (s *natsGatherer) CompileError(msg string) {
	s.send(s.tally.FinishJobMsg(s.evalUuid, &msg, true, false))
}

func (s *natsGatherer) InternalError(msg string) {
	s.send(s.tally.FinishJobMsg(s.evalUuid, &msg, false, true))
}

func (s *natsGatherer) FinishNoError() {
	s.send(s.tally.FinishJobMsg(s.evalUuid, nil, false, false))
}
