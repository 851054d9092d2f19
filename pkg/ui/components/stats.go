package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds engine counters for display.
type Stats struct {
	Pools    int
	Prices   int
	Events   int64
	Reorgs   int64
	Disabled int
}

// StatsComponent renders engine statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	reorgDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.Reorgs))
	if s.stats.Reorgs > 0 {
		reorgDisplay = warnStyle.Render(fmt.Sprintf("%d", s.stats.Reorgs))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Pools: %s  │  Prices: %s  │  Events: %s  │  Reorgs: %s  │  Disabled: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Pools)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Prices)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Events)),
			reorgDisplay,
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Disabled)),
		)
}
