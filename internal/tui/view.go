package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

const (
	barWidth        = 30
	defaultWidth    = 80
	maxScheduleRows = 40
)

func renderView(snap Snapshot, showSchedule bool, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var b strings.Builder

	w := snap.Window
	header := fmt.Sprintf("auto-commit │ %s │ window %d │ %d/%d commits",
		snap.Phase, snap.Windows, w.Completed, w.Scheduled)
	b.WriteString(headerStyle.Foreground(phaseColor(snap.Phase)).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("🕑 Window"))
	b.WriteString("\n")
	b.WriteString(renderWindow(w, snap.Timestamp))

	b.WriteString(sectionStyle.Render("📦 Repository"))
	b.WriteString("\n")
	b.WriteString(renderRepo(snap.Repo))

	if showSchedule {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("📅 Schedule (%d)", len(w.Schedule))))
		b.WriteString("\n")
		b.WriteString(renderSchedule(w))
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("📝 Recent Cycles (%d attempted, %d succeeded)",
		snap.TotalAttempted, snap.TotalSucceeded)))
	b.WriteString("\n")
	b.WriteString(renderCycles(snap.Recent, width))

	footer := fmt.Sprintf("Last updated: %s", snap.Timestamp.Format(time.TimeOnly))
	b.WriteString(footerStyle.Render(footer))
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func renderWindow(w WindowState, now time.Time) string {
	if w.Start.IsZero() {
		return emptyStyle.Render("  (no window started yet)") + "\n"
	}

	var b strings.Builder
	b.WriteString(row("  span", fmt.Sprintf("%s → %s", w.Start.Format("Jan 2 15:04"), w.End.Format("Jan 2 15:04"))))
	b.WriteString(row("  progress", progressBar(w.Completed, w.Scheduled)+fmt.Sprintf(" %d/%d", w.Completed, w.Scheduled)))
	b.WriteString(row("  results", fmt.Sprintf("%d ok, %d failed, %d remaining",
		w.Succeeded, w.Completed-w.Succeeded, w.Remaining)))

	next := "none"
	if !w.NextDue.IsZero() {
		next = fmt.Sprintf("%s (%s)", w.NextDue.Format(time.TimeOnly), humanize.RelTime(w.NextDue, now, "ago", "from now"))
	}
	b.WriteString(row("  next", next))
	if !w.End.IsZero() && w.End.After(now) {
		b.WriteString(row("  closes", humanize.RelTime(w.End, now, "ago", "from now")))
	}
	return b.String()
}

func progressBar(done, total int) string {
	filled := 0
	if total > 0 {
		filled = min(barWidth, done*barWidth/total)
	}
	return barDoneStyle.Render(strings.Repeat("█", filled)) +
		barTodoStyle.Render(strings.Repeat("░", barWidth-filled))
}

func renderRepo(r RepoState) string {
	if r.Path == "" {
		return emptyStyle.Render("  (repository not set up)") + "\n"
	}

	var b strings.Builder
	b.WriteString(row("  path", r.Path))
	b.WriteString(labelStyle.Render("  state"))
	b.WriteString(lipgloss.NewStyle().Foreground(repoStateColor(r.State)).Render(r.State))
	b.WriteString("\n")
	if r.Branch != "" {
		b.WriteString(row("  branch", fmt.Sprintf("%s (%s commits)", r.Branch, humanize.Comma(int64(r.CommitCount)))))
	}
	remote := "no (local only)"
	if r.HasRemote {
		remote = "yes"
	}
	b.WriteString(row("  remote", remote))
	if r.Error != "" {
		b.WriteString(labelStyle.Render("  error"))
		b.WriteString(lipgloss.NewStyle().Foreground(colorFail).Render(r.Error))
		b.WriteString("\n")
	}
	return b.String()
}

func renderSchedule(w WindowState) string {
	if len(w.Schedule) == 0 {
		return emptyStyle.Render("  (nothing scheduled)") + "\n"
	}

	var b strings.Builder
	for i, ts := range w.Schedule {
		if i == maxScheduleRows {
			b.WriteString(emptyStyle.Render(fmt.Sprintf("  ... and %d more", len(w.Schedule)-i)))
			b.WriteString("\n")
			break
		}
		marker, color := "·", colorMuted
		switch {
		case i < w.Completed:
			marker, color = "✓", colorOK
		case i == w.Completed:
			marker, color = "→", colorActive
		}
		line := fmt.Sprintf("  %s %2d  %s", marker, i+1, ts.Format(time.TimeOnly))
		b.WriteString(lipgloss.NewStyle().Foreground(color).Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func renderCycles(cycles []CycleState, width int) string {
	if len(cycles) == 0 {
		return emptyStyle.Render("  (no cycles yet)") + "\n"
	}

	var b strings.Builder
	for _, c := range cycles {
		text := c.Message
		if c.Err != "" {
			text = c.Err
		}
		if c.Immediate {
			text = "[initial] " + text
		}
		text = strings.ReplaceAll(text, "\n", " ")
		prefix := fmt.Sprintf("  %s %s ", cycleIcon(c), c.At.Format(time.TimeOnly))
		suffix := fmt.Sprintf(" (%s)", formatDuration(c.Duration))
		room := width - runewidth.StringWidth(prefix) - runewidth.StringWidth(suffix)
		if room > 3 && runewidth.StringWidth(text) > room {
			text = runewidth.Truncate(text, room, "...")
		}

		b.WriteString(lipgloss.NewStyle().Foreground(cycleColor(c)).Render(prefix + text + suffix))
		b.WriteString("\n")
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
