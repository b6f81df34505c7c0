package harness

// TraceEvent is one callback delivered on the client thread.
type TraceEvent struct {
	// Seq is the 1-based delivery position.
	Seq int64 `json:"seq"`
	// Label is the label of the step that issued the request.
	Label string `json:"label"`
	// Op is the step operation.
	Op string `json:"op"`
	// Result is the callback argument in canonical form.
	Result map[string]any `json:"result"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace lists delivered callbacks in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Pending is the proxy's in-flight count after the final drain.
	Pending int `json:"pending"`

	// StoreCalls counts forwarded operations that reached the store.
	StoreCalls int64 `json:"store_calls"`
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
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends a delivered callback. Only the client thread calls it.
func (r *Result) addTrace(label, op string, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    int64(len(r.Trace) + 1),
		Label:  label,
		Op:     op,
		Result: result,
	})
}

// Event returns the trace event for label.
func (r *Result) Event(label string) (TraceEvent, bool) {
	for _, e := range r.Trace {
		if e.Label == label {
			return e, true
		}
	}
	return TraceEvent{}, false
}

// Snapshot returns the canonical form of the run used for golden files.
func (r *Result) Snapshot(name string) map[string]any {
	trace := make([]any, len(r.Trace))
	for i, e := range r.Trace {
		trace[i] = map[string]any{
			"seq":    e.Seq,
			"label":  e.Label,
			"op":     e.Op,
			"result": e.Result,
		}
	}
	return map[string]any{
		"scenario_name": name,
		"pending":       r.Pending,
		"trace":         trace,
	}
}
