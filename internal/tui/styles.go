package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorMuted   = lipgloss.Color("240") // gray
	colorWarn    = lipgloss.Color("220") // yellow
	colorFail    = lipgloss.Color("196") // red
	colorActive  = lipgloss.Color("33")  // blue
	colorEmpty   = lipgloss.Color("208") // orange
	colorOK      = lipgloss.Color("46")  // green
	colorDefault = lipgloss.Color("252")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingLeft(1).
			PaddingRight(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorDefault)

	barDoneStyle = lipgloss.NewStyle().Foreground(colorOK)
	barTodoStyle = lipgloss.NewStyle().Foreground(colorMuted)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)
)

func phaseColor(phase string) lipgloss.Color {
	switch phase {
	case PhaseCommitting:
		return colorActive
	case PhasePaused:
		return colorWarn
	case PhaseStopped:
		return colorMuted
	default:
		return colorDefault
	}
}

func repoStateColor(state string) lipgloss.Color {
	switch state {
	case "cloned_nonempty", "bootstrapped":
		return colorOK
	case "cloned_empty":
		return colorEmpty
	case "uninitialized":
		return colorMuted
	default:
		return colorDefault
	}
}

func cycleIcon(c CycleState) string {
	switch {
	case c.Success:
		return "✅"
	case c.NoChanges:
		return "➖"
	case c.Err != "":
		return "💥"
	default:
		return "❌"
	}
}

func cycleColor(c CycleState) lipgloss.Color {
	switch {
	case c.Success:
		return colorOK
	case c.NoChanges:
		return colorMuted
	case c.Err != "":
		return colorFail
	default:
		return colorWarn
	}
}
