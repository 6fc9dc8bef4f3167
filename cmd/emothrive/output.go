package main

import (
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notef writes a colorized status line with a leading marker to stderr.
func notef(color, marker, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, marker+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notef(colorGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { notef(colorRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { notef(colorYellow, "⚠ ", format, args...) }

// printStatus prints an indented "Label: value" line for status-style output.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
