// Package activity counts what users do during an attempt.
package activity

import (
	"fmt"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

type Kind string

const (
	Run            Kind = "run"
	Submit         Kind = "submit"
	Save           Kind = "save"
	Erase          Kind = "erase"
	LanguageSwitch Kind = "language_switch"
	Login          Kind = "login"
	Logout         Kind = "logout"
)

var kinds = []Kind{Run, Submit, Save, Erase, LanguageSwitch, Login, Logout}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !slices.Contains(kinds, k) {
		return "", fmt.Errorf("unknown activity kind %q", s)
	}
	return k, nil
}

type attemptLog struct {
	counts    map[Kind]*xsync.Counter
	languages mapset.Set[string]

	mu       sync.Mutex
	lastLang string
	lastSeen time.Time
}

func newAttemptLog() *attemptLog {
	l := &attemptLog{
		counts:    make(map[Kind]*xsync.Counter, len(kinds)),
		languages: mapset.NewSet[string](),
	}
	for _, k := range kinds {
		l.counts[k] = xsync.NewCounter()
	}
	return l
}

// Recorder is safe for concurrent use.
type Recorder struct {
	logs *xsync.MapOf[string, *attemptLog]
	now  func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		logs: xsync.NewMapOf[string, *attemptLog](),
		now:  now,
	}
}

func (r *Recorder) log(attemptID string) *attemptLog {
	l, _ := r.logs.LoadOrCompute(attemptID, newAttemptLog)
	return l
}

// Record counts one event. A non-empty language different from the one
// last seen also counts a language switch.
func (r *Recorder) Record(attemptID string, kind Kind, language string) {
	l := r.log(attemptID)
	if c, ok := l.counts[kind]; ok {
		c.Inc()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSeen = r.now()
	if language == "" {
		return
	}
	l.languages.Add(language)
	if l.lastLang != "" && l.lastLang != language && kind != LanguageSwitch {
		l.counts[LanguageSwitch].Inc()
	}
	l.lastLang = language
}

type Summary struct {
	Counts       map[Kind]int64 `json:"counts"`
	Languages    []string       `json:"languages"`
	LastActivity time.Time      `json:"last_activity"`
}

func (s Summary) Count(k Kind) int64 { return s.Counts[k] }

// Summary returns the counters of one attempt; zero when nothing was seen.
func (r *Recorder) Summary(attemptID string) Summary {
	s := Summary{Counts: make(map[Kind]int64, len(kinds))}
	l, ok := r.logs.Load(attemptID)
	if !ok {
		return s
	}
	for k, c := range l.counts {
		s.Counts[k] = c.Value()
	}
	s.Languages = l.languages.ToSlice()
	slices.Sort(s.Languages)

	l.mu.Lock()
	s.LastActivity = l.lastSeen
	l.mu.Unlock()
	return s
}

// Idle reports whether the attempt has shown no activity for longer than
// threshold. Attempts never seen are measured from since.
func (r *Recorder) Idle(attemptID string, since time.Time, threshold time.Duration) bool {
	last := since
	if l, ok := r.logs.Load(attemptID); ok {
		l.mu.Lock()
		if l.lastSeen.After(last) {
			last = l.lastSeen
		}
		l.mu.Unlock()
	}
	return r.now().Sub(last) > threshold
}

// Forget drops the counters of a finished attempt.
func (r *Recorder) Forget(attemptID string) {
	r.logs.Delete(attemptID)
}

// Tracked is the number of attempts with counters in memory.
func (r *Recorder) Tracked() int {
	return r.logs.Size()
}
