package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/mapper"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1 // the backend or the network failed
	ExitUsage   = 2 // bad flags, arguments or configuration
)

// ExitError carries the exit code a command should end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to an exit code. Client-side validation and
// conversion failures are usage errors; everything else is a failure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Status == 0 &&
		(errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrConversion)) {
		return ExitUsage
	}
	return ExitFailure
}

// describe is the one-line message printed for a failed command.
func describe(err error, verbose bool) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return exitErr.Message
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	if verbose {
		return err.Error()
	}
	if errors.Is(err, apperror.ErrConversion) {
		return appErr.Message
	}
	return apperror.UserMessage(err)
}

// printer writes either JSON or a human-readable rendering.
type printer struct {
	json bool
	w    io.Writer
}

func (p printer) print(v any, text func(w io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

// table renders rows under a header with aligned columns.
func table(w io.Writer, header string, rows func(tw io.Writer)) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	tw.Flush()
}

func parseID(arg string) (int64, error) {
	return mapper.ToInt64(arg)
}
