package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/murmur/internal/engine"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario, a validation or the client failed
	ExitCommandError = 2 // bad flags, paths or database
)

// Error codes carried by JSON error responses.
const (
	CodeConfig   = "E_CONFIG"
	CodeInput    = "E_INPUT"
	CodeRejected = "E_REJECTED"
	CodeEngine   = "E_ENGINE"
)

// ExitError carries the exit code a command failure maps to.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError count as ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// CLIResponse is the envelope of every JSON line the CLI writes.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failure in a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// IntentResult is the detail of a rejected or failed intent.
type IntentResult struct {
	Intent engine.IntentKind `json:"intent,omitempty"`
	Reject engine.RejectCode `json:"reject,omitempty"`
	ID     string            `json:"id,omitempty"`
}

// OutputFormatter writes command results as text or as JSON lines.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) encode(r CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(r)
}

// Success writes data as an ok response, or as a plain line in text mode.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a coded failure. Text mode shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// View writes a view snapshot: its text rendering, or the view as the JSON
// payload.
func (f *OutputFormatter) View(v *engine.View) error {
	if f.isJSON() {
		return f.Success(v)
	}
	return v.WriteText(f.Writer)
}

// Problem reports an interactive line that could not be used.
func (f *OutputFormatter) Problem(err error) error {
	if f.isJSON() {
		return f.Error(CodeInput, err.Error(), nil)
	}
	_, werr := fmt.Fprintf(f.Writer, "! %v\n", err)
	return werr
}

// EventFailed reports an event the engine rejected or failed to handle.
// Rejections carry their intent kind and reject code.
func (f *OutputFormatter) EventFailed(ev engine.Event, err error) error {
	if !f.isJSON() {
		_, werr := fmt.Fprintf(f.Writer, "! %v\n", err)
		return werr
	}

	var rejected *engine.RejectedError
	if errors.As(err, &rejected) {
		return f.Error(CodeRejected, err.Error(), IntentResult{
			Intent: rejected.Intent,
			Reject: rejected.Code,
			ID:     rejected.ID,
		})
	}
	var details any
	if ev.Intent != nil {
		details = IntentResult{Intent: ev.Intent.Kind}
	}
	return f.Error(CodeEngine, err.Error(), details)
}
