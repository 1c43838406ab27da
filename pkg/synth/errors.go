package synth

import "fmt"

// ValidationError is returned by ValidateScenarios. It is fatal:
// the process must not begin emitting until every ValidationError is fixed.
type ValidationError struct {
	Path   string // scenario file the error was found in
	Field  string // dotted field path within the scenario/span tree
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Field, e.Reason)
}

// ValidationErrors is a non-empty list of ValidationError, returned together
// so a caller can print every problem found rather than stopping at the first.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors, first: %s", len(e), e[0].Error())
}

// UnresolvedTemplateError aborts the current trace only; the worker pool
// logs it, increments a counter, and proceeds to the next trace.
type UnresolvedTemplateError struct {
	Template string
	Reason   string
}

func (e *UnresolvedTemplateError) Error() string {
	return fmt.Sprintf("unresolved template %q: %s", e.Template, e.Reason)
}

// ExporterError wraps a failed synchronous export of a span record, which
// is a Store.Add made by TraceRecorder. It is logged and counted; it does not
// abort the trace and never stops the worker pool.
type ExporterError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExporterError) Error() string {
	return fmt.Sprintf("exporting span %s/%s: %v", e.Service, e.Operation, e.Err)
}

func (e *ExporterError) Unwrap() error { return e.Err }
