package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PoolRow is one pool in the table.
type PoolRow struct {
	ID           string
	Venue        string
	Pair         string
	Kind         string
	SpotPrice    float64
	LiquidityUSD string
}

// PoolsComponent renders the live pool table.
type PoolsComponent struct {
	rows map[string]PoolRow
	max  int
}

// NewPoolsComponent creates a pools component showing up to max rows.
func NewPoolsComponent(max int) *PoolsComponent {
	return &PoolsComponent{rows: make(map[string]PoolRow), max: max}
}

// Update upserts one pool row.
func (p *PoolsComponent) Update(row PoolRow) {
	p.rows[row.ID] = row
}

// Remove drops a pool row.
func (p *PoolsComponent) Remove(id string) {
	delete(p.rows, id)
}

// Count returns the number of tracked rows.
func (p *PoolsComponent) Count() int { return len(p.rows) }

// View renders the pool table.
func (p *PoolsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	if len(p.rows) == 0 {
		return headerStyle.Render("POOLS") + "\n" +
			dimStyle.Render("Waiting for pool updates...")
	}

	rows := make([]PoolRow, 0, len(p.rows))
	for _, r := range p.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	if len(rows) > p.max {
		rows = rows[:p.max]
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("POOLS (%d)", len(p.rows))))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %-14s  %-12s  %-5s  %16s  %14s\n",
		"Pair", "Venue", "Kind", "Spot", "Liquidity"))
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 68)))
	b.WriteString("\n")

	for _, row := range rows {
		b.WriteString(fmt.Sprintf("  %-14s  %-12s  %-5s  %16.6g  %14s\n",
			row.Pair, row.Venue, row.Kind, row.SpotPrice, row.LiquidityUSD))
	}
	return b.String()
}
