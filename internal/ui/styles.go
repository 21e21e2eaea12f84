// internal/ui/styles.go

package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Kolory
	Subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	Highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	Special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	Warning   = lipgloss.AdaptiveColor{Light: "#C28A00", Dark: "#F1C40F"}
	Failure   = lipgloss.AdaptiveColor{Light: "#FF0000", Dark: "#FF0000"}
	Border    = lipgloss.AdaptiveColor{Light: "#33B2FF", Dark: "#33B2FF"}

	// Tytuł
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Highlight)

	// Opisy i informacje
	DescriptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	// Statusy
	SuccessStyle = lipgloss.NewStyle().
			Foreground(Special).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Failure).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))
)
