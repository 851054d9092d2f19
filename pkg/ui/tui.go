package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/market-data-engine/pkg/ui/components"
)

// Program is the running Bubble Tea program; Send routes messages to it.
var Program *tea.Program

// Send delivers a message to the running program, if any.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

// Model is the root TUI model: a status bar, the pool table, the USD
// price table, stats, and a short log tail.
type Model struct {
	keys KeyMap

	status *components.StatusComponent
	pools  *components.PoolsComponent
	prices *components.PricesComponent
	stats  *components.StatsComponent

	logs     []string
	lastErr  error
	paused   bool
	width    int
	height   int
	started  time.Time
}

// New creates the root model.
func New() Model {
	return Model{
		keys:    DefaultKeyMap(),
		status:  components.NewStatusComponent(),
		pools:   components.NewPoolsComponent(20),
		prices:  components.NewPricesComponent(),
		stats:   components.NewStatsComponent(),
		started: time.Now(),
	}
}

// Init starts the periodic refresh tick.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return TickMsg{} })
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.logs = nil
			m.lastErr = nil
		}
		return m, nil

	case TickMsg:
		return m, tick()

	case PoolRowMsg:
		if !m.paused {
			m.pools.Update(components.PoolRow{
				ID:           msg.ID,
				Venue:        msg.Venue,
				Pair:         msg.Pair,
				Kind:         msg.Kind,
				SpotPrice:    msg.SpotPrice,
				LiquidityUSD: msg.LiquidityUSD,
			})
		}
		return m, nil

	case PriceRowMsg:
		if !m.paused {
			m.prices.Update(components.PriceRow{
				Token: msg.Token,
				Chain: msg.Chain,
				Price: msg.Price,
			})
		}
		return m, nil

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:      msg.Name,
			Connected: msg.Connected,
			LastBlock: msg.LastBlock,
		})
		return m, nil

	case BlockMsg:
		m.status.Update(components.ConnectionStatus{
			Name:      msg.Platform,
			Connected: true,
			LastBlock: msg.Number,
		})
		return m, nil

	case StatsMsg:
		m.stats.Update(components.Stats{
			Pools:    msg.Pools,
			Prices:   msg.Prices,
			Events:   msg.Events,
			Reorgs:   msg.Reorgs,
			Disabled: msg.Disabled,
		})
		return m, nil

	case LogMsg:
		line := fmt.Sprintf("[%s] %s", msg.Level, msg.Message)
		m.logs = append(m.logs, line)
		if len(m.logs) > 5 {
			m.logs = m.logs[len(m.logs)-5:]
		}
		return m, nil

	case ErrorMsg:
		m.lastErr = msg.Error
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	title := TitleStyle.Render(" MARKET DATA ENGINE ")
	uptime := MutedValue.Render(fmt.Sprintf(" up %s", time.Since(m.started).Round(time.Second)))
	if m.paused {
		uptime += StatusReconnecting.Render("  [display paused]")
	}

	sections := []string{
		lipgloss.JoinHorizontal(lipgloss.Center, title, uptime),
		BoxStyle.Render(m.status.View()),
		BoxStyle.Render(m.pools.View()),
		BoxStyle.Render(m.prices.View()),
		BoxStyle.Render(m.stats.View()),
	}

	if len(m.logs) > 0 {
		sections = append(sections, BoxStyle.Render(strings.Join(m.logs, "\n")))
	}
	if m.lastErr != nil {
		sections = append(sections, NegativeValue.Render("error: "+m.lastErr.Error()))
	}

	sections = append(sections, HelpStyle.Render("q quit · p pause display · c clear"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
