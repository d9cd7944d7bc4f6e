// Package gatherer defines the event stream a grading job emits and the
// helpers shared by its sinks.
package gatherer

import (
	"sync"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/runner"
)

// Gatherer receives grading events. Every case gets exactly one FinishTest,
// and each job ends with exactly one of CompileError, InternalError or
// FinishNoError.
type Gatherer interface {
	StartJob(systemInfo string)

	StartCompile()
	FinishCompile(report *runner.CompileReport)

	ReachTest(order int, tc domain.TestCase)
	FinishTest(outcome domain.TestCaseOutcome)

	CompileError(msg string)
	InternalError(msg string)
	FinishNoError()
}

type nop struct{}

func Nop() Gatherer { return nop{} }

func (nop) StartJob(string) {}
func (nop) StartCompile() {}
func (nop) FinishCompile(*runner.CompileReport) {}
func (nop) ReachTest(int, domain.TestCase) {}
func (nop) FinishTest(domain.TestCaseOutcome) {}
func (nop) CompileError(string) {}
func (nop) InternalError(string) {}
func (nop) FinishNoError() {}

// Multi fans every event out to all gs in order.
func Multi(gs ...Gatherer) Gatherer {
	return multi(gs)
}

type multi []Gatherer

func (m multi) StartJob(info string) {
	for _, g := range m {
		g.StartJob(info)
	}
}

func (m multi) StartCompile() {
	for _, g := range m {
		g.StartCompile()
	}
}

func (m multi) FinishCompile(report *runner.CompileReport) {
	for _, g := range m {
		g.FinishCompile(report)
	}
}

func (m multi) ReachTest(order int, tc domain.TestCase) {
	for _, g := range m {
		g.ReachTest(order, tc)
	}
}

func (m multi) FinishTest(o domain.TestCaseOutcome) {
	for _, g := range m {
		g.FinishTest(o)
	}
}

func (m multi) CompileError(msg string) {
	for _, g := range m {
		g.CompileError(msg)
	}
}

func (m multi) InternalError(msg string) {
	for _, g := range m {
		g.InternalError(msg)
	}
}

func (m multi) FinishNoError() {
	for _, g := range m {
		g.FinishNoError()
	}
}

// Locked serializes calls into g. The harness reports test events from
// many goroutines; sinks can then assume one caller at a time.
func Locked(g Gatherer) Gatherer {
	if _, ok := g.(*locked); ok {
		return g
	}
	return &locked{g: g}
}

type locked struct {
	mu sync.Mutex
	g  Gatherer
}

func (l *locked) StartJob(info string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.StartJob(info)
}

func (l *locked) StartCompile() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.StartCompile()
}

func (l *locked) FinishCompile(report *runner.CompileReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.FinishCompile(report)
}

func (l *locked) ReachTest(order int, tc domain.TestCase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.ReachTest(order, tc)
}

func (l *locked) FinishTest(o domain.TestCaseOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.FinishTest(o)
}

func (l *locked) CompileError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.CompileError(msg)
}

func (l *locked) InternalError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.InternalError(msg)
}

func (l *locked) FinishNoError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.FinishNoError()
}
