// Package color styles terminal output for the syncbridge CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/) and
// turns itself off when stdout is not a terminal.
package color

import (
	"os"

	"github.com/fatih/color"

	"github.com/jvs-project/syncbridge/pkg/errclass"
)

// Init applies the --no-color flag and TERM=dumb on top of fatih/color's
// own NO_COLOR and terminal detection.
func Init(noColorFlag bool) {
	if noColorFlag || os.Getenv("TERM") == "dumb" {
		color.NoColor = true
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	return !color.NoColor
}

// Disable turns off color output.
func Disable() {
	color.NoColor = true
}

// Enable turns on color output.
func Enable() {
	color.NoColor = false
}

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	info    = color.New(color.FgCyan).SprintFunc()
	header  = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
)

// Success formats a success message in green.
func Success(s string) string { return success(s) }

// Error formats an error message in red.
func Error(s string) string { return failure(s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return warning(s) }

// Info formats an informational message in cyan.
func Info(s string) string { return info(s) }

// Header formats a header in bold.
func Header(s string) string { return header(s) }

// Dim formats secondary information.
func Dim(s string) string { return dim(s) }

// Status colors s by the status it reports: green for OK, yellow for
// configuration problems, red otherwise.
func Status(st errclass.Status, s string) string {
	switch st {
	case errclass.StatusOK:
		return Success(s)
	case errclass.StatusConfigInvalid:
		return Warning(s)
	default:
		return Error(s)
	}
}
