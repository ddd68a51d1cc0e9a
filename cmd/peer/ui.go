package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	primary = lipgloss.Color("#22d3ee")
	success = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	danger  = lipgloss.Color("#EF4444")
	muted   = lipgloss.Color("#6B7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F9FAFB")).
			Background(primary).
			Padding(0, 1).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 2)
)

func printError(msg string) {
	fmt.Println(errorStyle.Render("✗ " + msg))
}

func printWarning(msg string) {
	fmt.Println(warningStyle.Render("! " + msg))
}

func printSuccess(msg string) {
	fmt.Println(successStyle.Render("✓") + " " + msg)
}

func printStatus(label, value string) {
	fmt.Println(statusStyle.Render(label) + " " + value)
}

func printHint(msg string) {
	fmt.Println(mutedStyle.Render(msg))
}
