package scoring

import "github.com/programme-lv/assessor/internal/domain"

// Accuracy is a read-only view over stored outcomes.
type Accuracy struct {
	Passed  int
	Total   int
	Percent float64
	ByKind  map[domain.ErrorKind]int
}

// CaseAccuracy recomputes pass counts from outcomes. ByKind counts failing
// cases per error kind.
func CaseAccuracy(outcomes []domain.TestCaseOutcome) Accuracy {
	a := Accuracy{Total: len(outcomes), ByKind: map[domain.ErrorKind]int{}}
	for _, o := range outcomes {
		if o.Passed {
			a.Passed++
			continue
		}
		a.ByKind[o.ErrorKind]++
	}
	a.Percent = Percentage(a.Passed, a.Total)
	return a
}

// AttemptAccuracy is CaseAccuracy over every question of an attempt.
func AttemptAccuracy(r domain.AttemptResult) Accuracy {
	var all []domain.TestCaseOutcome
	for _, q := range r.Questions {
		all = append(all, q.Outcomes...)
	}
	return CaseAccuracy(all)
}

// NeedsRetry reports whether any outcome failed for reasons outside the
// submitted code.
func NeedsRetry(outcomes []domain.TestCaseOutcome) bool {
	for _, o := range outcomes {
		if o.ErrorKind == domain.InternalExecutionError {
			return true
		}
	}
	return false
}
