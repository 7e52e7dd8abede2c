package xcresult

import (
	"strings"

	"github.com/xcbolt/xcreport/internal/core"
)

// ConversionError aborts the conversion of an input. Stderr carries the
// output captured from the failing tool, when there was one.
type ConversionError struct {
	Message string
	Stderr  string
	Err     error
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Stderr != "" {
		b.WriteString("\n")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *ConversionError) Unwrap() error { return e.Err }

func toolError(msg string, out core.CmdOutput) *ConversionError {
	return &ConversionError{Message: msg, Stderr: out.ErrorDetail()}
}
