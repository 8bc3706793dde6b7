// Package ui provides message printing utilities.
package ui

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether stdout is an interactive terminal. Styled output
// is suppressed in pipes and CI logs.
func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// Println prints an empty line.
func Println() {
	fmt.Println()
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(SuccessStyle.Render("✓ " + msg))
}

// PrintError prints an error message.
func PrintError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(ErrorStyle.Render("✗ " + msg))
}

// PrintWarning prints a warning message.
func PrintWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(WarningStyle.Render("⚠ " + msg))
}

// PrintInfo prints an informational message.
func PrintInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(InfoStyle.Render(msg))
}

// PrintDim prints a dimmed message.
func PrintDim(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Println(DimStyle.Render(msg))
}

// PrintLink prints a labeled URL.
func PrintLink(label, url string) {
	fmt.Printf("%s %s\n", DimStyle.Render(label+":"), LinkStyle.Render(url))
}

// PrintCheck prints one doctor check result.
func PrintCheck(name string, found bool, hint string) {
	if found {
		fmt.Printf("  %s %s\n", StatusOKStyle.Render("✓"), name)
		return
	}
	fmt.Printf("  %s %s  %s\n", StatusMissingStyle.Render("✗"), name, DimStyle.Render(hint))
}
