// Package ui provides the CLI's TTY-aware colored status output: color
// is only emitted when stdout is an interactive terminal and the user
// hasn't asked for --no-color or set NO_COLOR.
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Init decides whether colored output is appropriate and configures the
// shared fatih/color state accordingly. noColor is the CLI's --no-color
// flag; NO_COLOR in the environment always wins regardless of flag.
func Init(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

var (
	ok    = color.New(color.FgGreen, color.Bold)
	warn  = color.New(color.FgYellow, color.Bold)
	fail  = color.New(color.FgRed, color.Bold)
	title = color.New(color.FgCyan, color.Bold)
)

// OK prints a green, bold status line to stdout.
func OK(format string, args ...any) { ok.Printf(format+"\n", args...) }

// Warn prints a yellow, bold status line to stdout.
func Warn(format string, args ...any) { warn.Printf(format+"\n", args...) }

// Fail prints a red, bold status line to stdout.
func Fail(format string, args ...any) { fail.Printf(format+"\n", args...) }

// Title prints a cyan, bold section header to stdout.
func Title(format string, args ...any) { title.Printf(format+"\n", args...) }
