package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/lock"
	"github.com/ThomasCrouzet/svcrunner/internal/resolver"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// FormatError returns a styled multi-line error message.
func FormatError(title, detail, suggestion string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		for _, line := range strings.Split(strings.TrimRight(detail, "\n"), "\n") {
			out += "  " + line + "\n"
		}
	}
	if suggestion != "" {
		out += "  " + hintStyle.Render("Hint: "+suggestion) + "\n"
	}
	return out
}

// Report writes err to w with a title derived from its kind and a hint for
// what to do next.
func Report(w io.Writer, title string, err error) {
	fmt.Fprint(w, FormatError(title, err.Error(), Suggest(err)))
}

// Suggest maps an error to the next command worth trying, if any.
func Suggest(err error) string {
	var e *svcerr.Error
	service := "<service>"
	if errors.As(err, &e) && e.Service != "" {
		service = e.Service
	}

	switch {
	case errors.Is(err, lock.ErrTimeout):
		return "another svcrunner operation holds the service lock; wait for it or raise lock.timeout"
	case errors.Is(err, resolver.ErrNoDefinition):
		return "the image must ship docker-compose.yml or servicecfg.sh under /svcrunner"
	case errors.Is(err, resolver.ErrUnsupportedVersion):
		return fmt.Sprintf("the manifest must declare version %d", resolver.SupportedSchemaVersion)
	case errors.Is(err, lifecycle.ErrBroken):
		return "try: svcrunner recover " + service
	}

	switch svcerr.KindOf(err) {
	case svcerr.Resolution:
		return "check the service definition shipped in the image"
	case svcerr.Runtime:
		return "check that docker is running: docker info"
	case svcerr.Filesystem:
		return "check permissions under the svcrunner root, or run: svcrunner status " + service
	case svcerr.StateMismatch:
		return "the image no longer matches the backup; restore with the image version that made it"
	case svcerr.CorruptArchive:
		return "the archive is incomplete; use another backup"
	}
	return ""
}

// StepStarted prints a pending step.
func StepStarted(name string) {
	fmt.Printf("  %s %s\n", dimStyle.Render("..."), name)
}

// StepDone prints a finished step.
func StepDone(name, detail string) {
	msg := successStyle.Render("  OK ") + " " + name
	if detail != "" {
		msg += " " + dimStyle.Render(detail)
	}
	fmt.Println(msg)
}

// StepSkipped prints a step that did not need to run.
func StepSkipped(name string) {
	fmt.Printf("  %s %s\n", dimStyle.Render("--"), dimStyle.Render(name+" (no change)"))
}

// Success prints a green success message.
func Success(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// Warn prints a yellow warning message.
func Warn(msg string) {
	fmt.Println(warnStyle.Render("Warning: " + msg))
}

// Bold renders text in bold.
func Bold(s string) string {
	return boldStyle.Render(s)
}

// Hint renders text in dim italic.
func Hint(s string) string {
	return hintStyle.Render(s)
}

// Dim renders secondary text.
func Dim(s string) string {
	return dimStyle.Render(s)
}

// ValidationOK prints a green check for a valid field.
func ValidationOK(field, detail string) {
	fmt.Printf("  %s %s: %s\n", successStyle.Render("OK "), field, detail)
}

// ValidationErr prints a red error for an invalid field.
func ValidationErr(field, message, suggestion string) {
	fmt.Printf("  %s %s: %s\n", errorStyle.Render("ERR"), field, message)
	if suggestion != "" {
		fmt.Printf("      %s\n", hintStyle.Render("Hint: "+suggestion))
	}
}
