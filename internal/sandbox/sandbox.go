// Package sandbox runs model-generated snippets against a table copy and
// normalizes whatever they produce into a fixed Outcome shape.
//
// Snippets execute as Starlark with exactly three predeclared bindings:
// df (the table), plt (figure builder) and np (numeric helpers). Starlark
// exposes no filesystem, network or process capability, and execution is
// bounded by a wall-clock deadline and a step ceiling, so a hostile or
// runaway snippet is cut off and reported as an ordinary execution fault.
package sandbox

import (
	"encoding/base64"
	"log"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/jordanhubbard/tablechat/internal/table"
)

// Outcome is the normalized result of one snippet run. Error is mutually
// exclusive with Value/Image: a raised fault never fabricates a value.
// Value and Image may both be set when a snippet computes a number and also
// draws a chart.
type Outcome struct {
	GeneratedCode string
	Value         any    // mapping for table-like results, stringified otherwise; "None" when absent
	Image         string // base64-encoded PNG of the last figure, empty if none
	Error         string // fault text, empty on success
}

// Defaults for bounded execution.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxSteps = 10_000_000
)

// fileOptions enables the statement forms code-generation models produce
// (reassignment, while loops, top-level if).
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Runner executes snippets. Safe for concurrent use; every run gets its own
// interpreter thread, table copy and figure state.
type Runner struct {
	timeout  time.Duration
	maxSteps uint64
}

// NewRunner creates a runner. Non-positive limits fall back to the defaults;
// there is deliberately no way to disable the ceilings entirely.
func NewRunner(timeout time.Duration, maxSteps uint64) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{timeout: timeout, maxSteps: maxSteps}
}

// Run executes one snippet against a private copy of tbl. Its contract is
// total: faults raised by the snippet (syntax errors, runtime errors,
// deadline or step-limit violations) are captured in Outcome.Error, never
// returned as a Go error or propagated as a panic.
func (r *Runner) Run(code string, tbl *table.Table) *Outcome {
	out := &Outcome{GeneratedCode: code}

	pm := newPlotModule()
	predeclared := starlark.StringDict{
		"df":  NewDataFrame(tbl.Copy()),
		"plt": pm.module(),
		"np":  numericModule(),
	}

	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			log.Printf("[sandbox] print: %s", msg)
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)

	timer := time.AfterFunc(r.timeout, func() {
		thread.Cancel("execution deadline exceeded")
	})
	defer timer.Stop()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "snippet.star", code, predeclared)
	if err != nil {
		out.Error = faultText(err)
		return out
	}

	if png, drawn, err := pm.renderLast(); err != nil {
		out.Error = err.Error()
		return out
	} else if drawn {
		out.Image = base64.StdEncoding.EncodeToString(png)
	}

	out.Value = resultValue(globals["result"])
	return out
}

// resultValue normalizes the `result` binding: table-like values become
// mappings, everything else is stringified, and an absent binding yields the
// stringified absence sentinel.
func resultValue(v starlark.Value) any {
	if v == nil || v == starlark.None {
		return "None"
	}
	if m, ok := v.(mapper); ok {
		return m.ToMapping()
	}
	if d, ok := v.(*starlark.Dict); ok {
		return dictToGo(d)
	}
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

func dictToGo(d *starlark.Dict) map[string]any {
	out := make(map[string]any, d.Len())
	for _, item := range d.Items() {
		key, ok := starlark.AsString(item[0])
		if !ok {
			key = item[0].String()
		}
		out[key] = goFromStarlark(item[1])
	}
	return out
}

func goFromStarlark(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case *starlark.List:
		out := make([]any, x.Len())
		for i := 0; i < x.Len(); i++ {
			out[i] = goFromStarlark(x.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = goFromStarlark(e)
		}
		return out
	case *starlark.Dict:
		return dictToGo(x)
	default:
		if m, ok := v.(mapper); ok {
			return m.ToMapping()
		}
		return v.String()
	}
}

// faultText prefers the bare message over the full backtrace so the caller
// sees what the snippet did wrong, not interpreter internals.
func faultText(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return evalErr.Msg
	}
	return err.Error()
}
