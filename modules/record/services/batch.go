package services

import "github.com/jacksonlee411/recordhub/pkg/httperr"

// Policy decides how per-item outcomes reduce to one batch result.
type Policy int

const (
	// PolicyAny succeeds when at least one item succeeded.
	PolicyAny Policy = iota
	// PolicyAll succeeds only when every item succeeded.
	PolicyAll
)

type Outcome struct {
	Item string
	OK   bool
	Err  error
}

func Reduce(policy Policy, outcomes []Outcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		ok := o.OK && o.Err == nil
		if policy == PolicyAny && ok {
			return true
		}
		if policy == PolicyAll && !ok {
			return false
		}
	}
	return policy == PolicyAll
}

// RunBatch applies fn to each item independently. A Forbidden error stops the
// batch and is returned; any other error is recorded as a failed outcome.
func RunBatch(items []string, fn func(item string) (bool, error)) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(items))
	for _, item := range items {
		ok, err := fn(item)
		if httperr.IsForbidden(err) {
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{Item: item, OK: ok, Err: err})
	}
	return outcomes, nil
}
