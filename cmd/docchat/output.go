package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	stepColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
	faintColor   = color.New(color.Faint)
)

func fprintSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successColor.Sprint("✓ "+fmt.Sprintf(format, args...)))
}

func fprintError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorColor.Sprint("✗ "+fmt.Sprintf(format, args...)))
}

func fprintWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warningColor.Sprint("⚠ "+fmt.Sprintf(format, args...)))
}

func fprintStep(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, stepColor.Sprint("→ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) { fprintError(os.Stderr, format, args...) }
