package build

import (
	"time"

	"github.com/seeqbio/cabin/internal/dataset"
)

// Action is what the builder did with one instance.
type Action string

const (
	// ActionSatisfied means the instance already existed.
	ActionSatisfied Action = "satisfied"
	// ActionPlanned means a dry run would have produced the instance.
	ActionPlanned Action = "planned"
	// ActionProduced means the instance was produced and checked.
	ActionProduced Action = "produced"
	// ActionFailed means producing the instance or one of its inputs failed.
	ActionFailed Action = "failed"
)

// Step is one instance visited by a build.
type Step struct {
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Signature string        `json:"signature"`
	Action    Action        `json:"action"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Err       error         `json:"-"`
}

// Report lists the steps of one or more builds in completion order, so
// inputs always come before the instances that use them.
type Report struct {
	Steps []Step `json:"steps"`
}

func (r *Report) add(inst *dataset.Instance, action Action, d time.Duration, err error) {
	r.Steps = append(r.Steps, Step{
		Name:      inst.Name(),
		Type:      inst.TypeName(),
		Signature: inst.Signature(),
		Action:    action,
		Duration:  d,
		Err:       err,
	})
}

// Names returns the names of the steps with the given action, in order.
func (r *Report) Names(action Action) []string {
	var names []string
	for _, s := range r.Steps {
		if s.Action == action {
			names = append(names, s.Name)
		}
	}
	return names
}

// Types returns the type names of the steps with the given action, in order.
func (r *Report) Types(action Action) []string {
	var types []string
	for _, s := range r.Steps {
		if s.Action == action {
			types = append(types, s.Type)
		}
	}
	return types
}

// Count returns how many steps had the given action.
func (r *Report) Count(action Action) int {
	return len(r.Names(action))
}

// Failed returns the first failed step, or nil.
func (r *Report) Failed() *Step {
	for i := range r.Steps {
		if r.Steps[i].Action == ActionFailed {
			return &r.Steps[i]
		}
	}
	return nil
}
