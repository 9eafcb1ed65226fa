package dashboard

import (
	"math"

	"github.com/charmbracelet/lipgloss"
)

// MinPaneWidth is the minimum character width of either pane.
const MinPaneWidth = 12

var (
	accent = lipgloss.AdaptiveColor{Light: "4", Dark: "12"}
	dim    = lipgloss.AdaptiveColor{Light: "240", Dark: "245"}

	activeTab   = lipgloss.NewStyle().Bold(true).Foreground(accent).Underline(true)
	inactiveTab = lipgloss.NewStyle().Foreground(dim)
	mutedText   = lipgloss.NewStyle().Foreground(dim)
	selectedRow = lipgloss.NewStyle().Bold(true)
	unreadText  = lipgloss.NewStyle().Bold(true)
	titleText   = lipgloss.NewStyle().Bold(true)

	errorBanner = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"}).
			Bold(true)
	infoBanner = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})

	positiveText = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})
	negativeText = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
)

// gradeStyle colors a Bulgarian mark: 2 is failing, 6 is excellent.
func gradeStyle(mark string) lipgloss.Style {
	if mark == "" {
		return lipgloss.NewStyle()
	}
	switch mark[0] {
	case '2':
		return negativeText
	case '3':
		return lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "208", Dark: "208"})
	case '5', '6':
		return positiveText
	}
	return lipgloss.NewStyle()
}

// FocusedBorder returns a lipgloss style with an accent-colored rounded border.
func FocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent)
}

// UnfocusedBorder returns a lipgloss style with a dim rounded border.
func UnfocusedBorder() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "240", Dark: "240"})
}

// PaneWidths splits totalWidth between the student pane and the content
// pane. The student pane gets ratio of the width; neither pane drops below
// MinPaneWidth unless the terminal is too narrow for both.
func PaneWidths(totalWidth int, ratio float64) (left, right int) {
	if totalWidth <= 0 {
		return 0, 0
	}
	left = int(math.Round(float64(totalWidth) * ratio))
	if left < MinPaneWidth {
		left = MinPaneWidth
	}
	if totalWidth-left < MinPaneWidth {
		left = totalWidth - MinPaneWidth
	}
	if left < 0 {
		left = 0
	}
	right = totalWidth - left
	return left, right
}
