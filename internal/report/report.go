// Package report times backend calls and prints their outcome.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one timed call. Exactly one of Payload and Err
// is meaningful. Measured is false when no call was made.
type Result struct {
	Payload  any
	Err      error
	Elapsed  time.Duration
	Measured bool
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// PanicError carries a value recovered from a panicking call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Measure runs fn and records how long it took to settle. A panic in fn is
// turned into a PanicError result.
func Measure(fn func() (any, error)) (res Result) {
	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		res.Measured = true
		if p := recover(); p != nil {
			res.Payload = nil
			res.Err = &PanicError{Value: p}
		}
	}()
	res.Payload, res.Err = fn()
	return res
}

// FormatElapsed renders d as whole seconds plus fractional milliseconds.
func FormatElapsed(d time.Duration) string {
	sec := d / time.Second
	ms := float64(d%time.Second) / float64(time.Millisecond)
	return fmt.Sprintf("Execution time (hr): %ds %.6fms", int64(sec), ms)
}

// Reporter writes command output for the operator.
type Reporter struct {
	out io.Writer
	log zerolog.Logger
}

// New creates a Reporter writing to out.
func New(out io.Writer, logger zerolog.Logger) *Reporter {
	return &Reporter{out: out, log: logger}
}

// Banner prints the "command: ..." line that precedes a backend call.
func (r *Reporter) Banner(title string) {
	fmt.Fprintf(r.out, "command: %s\n", title)
}

// Text prints static text such as help listings.
func (r *Reporter) Text(text string) {
	fmt.Fprint(r.out, text)
}

// Line prints one line.
func (r *Reporter) Line(text string) {
	fmt.Fprintln(r.out, text)
}

// Report prints the payload or the error, then the elapsed time if the
// call was measured. Error text is printed exactly as the backend produced
// it.
func (r *Reporter) Report(res Result) {
	if res.Err != nil {
		fmt.Fprintln(r.out, formatError(res.Err))
		r.log.Debug().Err(res.Err).Dur("elapsed", res.Elapsed).Msg("command failed")
	} else {
		fmt.Fprintln(r.out, formatPayload(res.Payload))
		r.log.Debug().Dur("elapsed", res.Elapsed).Msg("command succeeded")
	}
	if res.Measured {
		fmt.Fprintln(r.out, FormatElapsed(res.Elapsed))
	}
}

func formatPayload(v any) string {
	switch p := v.(type) {
	case nil:
		return "null"
	case string:
		return p
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// formatError prefers the error's own JSON form when it has one.
func formatError(err error) string {
	if m, ok := err.(json.Marshaler); ok {
		if b, jerr := m.MarshalJSON(); jerr == nil {
			return string(b)
		}
	}
	return err.Error()
}
