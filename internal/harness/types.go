package harness

import "fmt"

// TraceEvent is one thing that happened during a scenario.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Step    int    `json:"step"`
	Action  string `json:"action"` // build action, "bumped", "pruned" or "dropped"
	Dataset string `json:"dataset"` // type name
	Detail  string `json:"detail,omitempty"`
}

// String renders the event as "<action> <dataset>", the form trace_order
// assertions use.
func (e TraceEvent) String() string {
	return e.Action + " " + e.Dataset
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// addEvent appends an event with the next sequence number.
func (r *Result) addEvent(step int, action, dataset, detail string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Step:    step,
		Action:  action,
		Dataset: dataset,
		Detail:  detail,
	})
}
