package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/batchworks/batchworks/internal/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation or failed reconciliation
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Commands return it once the failure has been reported to the user.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Error codes reported in CLI error responses.
const (
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeResourceUnavailable    = "RESOURCE_UNAVAILABLE"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeInternal               = "INTERNAL"
)

// ErrorCode maps an error onto the CLI error taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, models.ErrItemNotFound),
		errors.Is(err, models.ErrBatchNotFound),
		errors.Is(err, models.ErrRunNotFound),
		errors.Is(err, models.ErrTankNotFound),
		errors.Is(err, models.ErrCategoryNotFound):
		return CodeNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, models.ErrConcurrentModification):
		return CodeConcurrentModification
	case errors.Is(err, models.ErrResourceUnavailable):
		return CodeResourceUnavailable
	case errors.Is(err, models.ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// errorDetails returns the structured part of a typed error, if any.
func errorDetails(err error) any {
	var short *models.InsufficientStockError
	if errors.As(err, &short) {
		return short
	}
	var shortage *models.ShortageError
	if errors.As(err, &shortage) {
		return shortage.Shortages
	}
	var transition *models.TransitionError
	if errors.As(err, &transition) {
		return transition
	}
	var busy *models.ResourceUnavailableError
	if errors.As(err, &busy) {
		return busy
	}
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	return nil
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
	Printer   *message.Printer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// TextRenderer writes the human-readable form of a result.
type TextRenderer func(w io.Writer, p *message.Printer)

// Success outputs a successful result in the configured format. In text
// format render is used when given, otherwise data is printed as is.
func (f *OutputFormatter) Success(data any, render TextRenderer) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if render == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	render(f.Writer, f.printer())
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	w := f.GetErrWriter()
	fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(w, "Details: %+v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(err error) error {
	code := ErrorCode(err)
	if werr := f.Error(code, err.Error(), errorDetails(err)); werr != nil {
		return werr
	}
	exit := ExitFailure
	if code == CodeInternal {
		exit = ExitCommandError
	}
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) printer() *message.Printer {
	if f.Printer == nil {
		f.Printer = message.NewPrinter(language.English)
	}
	return f.Printer
}

// Qty formats a quantity with grouping and up to six fraction digits.
func Qty(p *message.Printer, d decimal.Decimal) string {
	return p.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(6)))
}

// Money formats a unit cost or total with two to six fraction digits.
func Money(p *message.Printer, d decimal.Decimal) string {
	return p.Sprint(number.Decimal(d.InexactFloat64(),
		number.MinFractionDigits(2), number.MaxFractionDigits(6)))
}

// Pct formats a yield percentage.
func Pct(p *message.Printer, d decimal.Decimal) string {
	return p.Sprint(number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(2))) + "%"
}
