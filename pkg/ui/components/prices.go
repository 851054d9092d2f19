package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PriceRow is one oracle-derived USD price.
type PriceRow struct {
	Token string
	Chain uint64
	Price float64
}

// PricesComponent renders the USD price table.
type PricesComponent struct {
	rows map[string]PriceRow
}

// NewPricesComponent creates a prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{rows: make(map[string]PriceRow)}
}

// Update upserts one price row keyed by token symbol and chain.
func (p *PricesComponent) Update(row PriceRow) {
	p.rows[fmt.Sprintf("%d:%s", row.Chain, row.Token)] = row
}

// View renders the price table.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	if len(p.rows) == 0 {
		return headerStyle.Render("USD PRICES") + "\n" +
			dimStyle.Render("Waiting for oracle...")
	}

	rows := make([]PriceRow, 0, len(p.rows))
	for _, r := range p.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Chain != rows[j].Chain {
			return rows[i].Chain < rows[j].Chain
		}
		return rows[i].Token < rows[j].Token
	})

	var b strings.Builder
	b.WriteString(headerStyle.Render("USD PRICES"))
	b.WriteString("\n\n")
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("  %-10s  chain %-5d  $%.4f\n",
			row.Token, row.Chain, row.Price))
	}
	return b.String()
}
