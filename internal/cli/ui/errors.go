package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/NullVoxPopuli/cardstack/internal/card"
)

// ErrorLevel is the severity of a message.
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures FormatError.
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Location     string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message block:
//
//	❌ INVALID CARD: The card 'cards/local-hub::x' is missing its card model.
//	   at /data/relationships/model/data
//
//	   Did you mean: local-hub::article-card?
//
//	   → Validate a card file: cardhub validate card.json
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	default:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	}
	accent := color.New(color.FgYellow)
	help := color.New(color.FgCyan)
	if opts.NoColor {
		for _, c := range []*color.Color{headerColor, bodyColor, accent, help} {
			c.DisableColor()
		}
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}
	if opts.Location != "" {
		bodyColor.Fprintf(&b, "   at %s\n", opts.Location)
	}
	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		accent.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}
	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			help.Fprintf(&b, "   → %s\n", cmd)
		}
	}
	return b.String()
}

// WriteError writes a formatted message to w.
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// CardError formats err, giving card errors their kind as context and their
// JSON pointer as location.
func CardError(err error, suggestions []string, noColor bool) string {
	opts := ErrorOptions{
		Level:       ErrorLevelError,
		Problem:     err.Error(),
		Suggestions: suggestions,
		NoColor:     noColor,
	}

	var cerr *card.Error
	if errors.As(err, &cerr) {
		opts.Context = cerr.Title()
		opts.Problem = cerr.Detail
		opts.Location = cerr.Pointer
		switch {
		case errors.Is(err, card.ErrNotFound):
			opts.HelpCommands = []string{"See indexed cards: cardhub list"}
		case errors.Is(err, card.ErrCyclicAdoption):
			opts.HelpCommands = []string{"Check the adopted-from relationships of the cards in the chain"}
		default:
			opts.HelpCommands = []string{"Validate a card file: cardhub validate <file>"}
		}
	}
	return FormatError(opts)
}

// ConfigError formats a configuration problem.
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelError,
		Context: "CONFIGURATION ERROR",
		Problem: message,
		HelpCommands: []string{
			"View config: cat cardhub.yaml",
			"Get help: cardhub --help",
		},
		NoColor: noColor,
	})
}

// Warning formats a warning.
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

// FormatSuccess formats a success line.
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to w.
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}
