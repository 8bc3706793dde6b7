// Package ui provides terminal output styling for the wvd CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Brand colors.
var (
	// Primary brand color
	Blue = lipgloss.Color("#3B82F6")

	// Secondary colors
	Red     = lipgloss.Color("#EF4444")
	Amber   = lipgloss.Color("#F59E0B")
	Green   = lipgloss.Color("#22C55E")
	Gray    = lipgloss.Color("#6B7280")
	DimGray = lipgloss.Color("#9CA3AF")
)

// Text styles.
var (
	// TitleStyle for main headings
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Blue)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red).
			Bold(true)

	// WarningStyle for warning messages
	WarningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// InfoStyle for informational messages
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	// DimStyle for less important text
	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	// LinkStyle for URLs
	LinkStyle = lipgloss.NewStyle().
			Foreground(Blue).
			Underline(true)

	// CodeStyle for inline commands
	CodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F3F4F6")).
			Background(lipgloss.Color("#374151")).
			Padding(0, 1)
)

// Status indicator styles for doctor output.
var (
	// StatusOKStyle for tools that were found
	StatusOKStyle = lipgloss.NewStyle().
			Foreground(Green)

	// StatusMissingStyle for tools that were not found
	StatusMissingStyle = lipgloss.NewStyle().
				Foreground(Red)
)
