package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// CLIErrorAdapter maps errors to exit codes and operator-facing messages.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the exit code for err.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	c, ok := AsClassified(err)
	if !ok {
		return 1
	}
	switch c.Category() {
	case CategoryValidation:
		return 2
	case CategoryConfig:
		return 7
	case CategoryNetwork:
		return 8
	case CategoryInternal:
		return 10
	case CategoryFileSystem:
		return 11
	case CategoryRuntime, CategoryLaunch, CategoryDaemon:
		return 12
	default:
		return 1
	}
}

// FormatError formats err for display on stderr.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	c, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	if a.verbose || c.Cause() == nil {
		return fmt.Sprintf("Error: %s", c.Error())
	}
	return fmt.Sprintf("Error: %s (use -v for details)", c.Message())
}

// Report logs err and writes the formatted message to w, returning the exit code.
func (a *CLIErrorAdapter) Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if c, ok := AsClassified(err); ok {
		attrs := []slog.Attr{slog.String("category", string(c.Category()))}
		if c.CanRetry() {
			attrs = append(attrs, slog.Bool("retryable", true))
		}
		if a.verbose && c.Cause() != nil {
			attrs = append(attrs, slog.String("cause", c.Cause().Error()))
		}
		a.logger.LogAttrs(context.Background(), slogLevel(c.Severity()), c.Message(), attrs...)
	} else if a.verbose {
		a.logger.Error("Unclassified error", "error", err)
	}
	_, _ = fmt.Fprintln(w, a.FormatError(err))
	return a.ExitCodeFor(err)
}
