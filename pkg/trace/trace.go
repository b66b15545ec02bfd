// Package trace attaches context frames to errors as they unwind, so the
// top-level entry point can print where inside a container a failure
// happened (manifest -> bundle -> chunk) without threading state around.
package trace

import (
	"errors"
	"fmt"
	"strings"
)

// Frame is one context line attached to a propagating error.
type Frame struct {
	msg string
	err error
}

// Error implements the error interface.
func (f *Frame) Error() string {
	return f.msg + ": " + f.err.Error()
}

// Unwrap returns the wrapped error.
func (f *Frame) Unwrap() error {
	return f.err
}

// Message returns the frame's context line.
func (f *Frame) Message() string {
	return f.msg
}

// Wrap attaches a context frame to err. A nil err passes through unchanged.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Frame{msg: fmt.Sprintf(format, args...), err: err}
}

// Errorf creates a new root error.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// Lines returns the root error message followed by every context frame,
// innermost first.
func Lines(err error) []string {
	var frames []string
	root := err
	for {
		var f *Frame
		if !errors.As(root, &f) {
			break
		}
		frames = append(frames, f.Message())
		root = f.Unwrap()
	}
	lines := []string{root.Error()}
	// frames were collected outermost first; the innermost scope is the
	// most specific, so reverse before printing.
	for i := len(frames) - 1; i >= 0; i-- {
		lines = append(lines, frames[i])
	}
	return lines
}

// Render formats err as the root message plus each frame indented on its
// own line, matching the CLI failure output.
func Render(err error) string {
	lines := Lines(err)
	var b strings.Builder
	b.WriteString(lines[0])
	for _, line := range lines[1:] {
		b.WriteString("\n  ")
		b.WriteString(line)
	}
	return b.String()
}
