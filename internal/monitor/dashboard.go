package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/ultracontext/internal/bus"
	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/ingest"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model represents the BubbleTea dashboard model
type Model struct {
	serverURL  string
	interval   time.Duration
	client     *Client
	events     <-chan *nats.Msg
	lastUpdate time.Time
	health     Health
	activity   Activity
	err        error
	quitting   bool

	// Historical data for sparklines (last N points)
	ratioHistory  []float64
	ingestHistory []float64

	// Progress bar for the last compression's reduction
	reduction progress.Model
}

// Activity accumulates bus events between refreshes. The health poll
// covers store totals, these counters cover what happened live.
type Activity struct {
	Compressions int
	RatioSum     float64
	LastRatio    float64
	LastDuration time.Duration
	Deduped      int
	FilesSynced  int
	Ingested     int
	LastSession  string
}

// MeanRatio returns the average compression ratio observed so far.
func (a Activity) MeanRatio() float64 {
	if a.Compressions == 0 {
		return 0
	}
	return a.RatioSum / float64(a.Compressions)
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	// Header style - bright cyan background, bold black text
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	// Section title style - bold bright cyan
	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	// Label style - dim cyan
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	// Value style - bright white
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// Dim style - for units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Status styles with unicode symbols
	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// Container style - rounded border with dim gray
	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	// Footer style - bright keys on dim background
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	// Sparkline container
	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a new dashboard model
func NewModel(serverURL string, interval time.Duration) Model {
	// Reduction bar runs cyan to magenta like the header accent
	reduction := progress.New(
		progress.WithGradient("#00ffff", "#ff00ff"),
		progress.WithWidth(40),
	)

	return Model{
		serverURL:     serverURL,
		interval:      interval,
		client:        NewClient(serverURL),
		quitting:      false,
		reduction:     reduction,
		ratioHistory:  make([]float64, 0, historySize),
		ingestHistory: make([]float64, 0, historySize),
	}
}

// statusBadge returns the overall daemon status badge
func (m Model) statusBadge() string {
	switch {
	case m.lastUpdate.IsZero():
		return warningStyle.Render("⚠ WAITING")
	case m.health.Status == "ok":
		return healthyStyle.Render("✓ HEALTHY")
	default:
		return errorStyle.Render("✗ ERROR")
	}
}

// getRatioBadge returns a colored status badge for a compression ratio,
// lower is better
func getRatioBadge(ratio float64) string {
	if ratio <= 0.5 {
		return healthyStyle.Render("[✓]")
	} else if ratio <= 0.9 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type healthMsg Health
type errMsg error

// busEventMsg carries one raw bus message. Decoding happens in Update
// so the model stays testable without a broker.
type busEventMsg struct {
	subject string
	data    []byte
}

// busClosedMsg signals that the event subscription ended.
type busClosedMsg struct{}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchHealth(m.client),
		waitForEvent(m.events),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchHealth fetches a health snapshot from the daemon
func fetchHealth(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		health, err := client.Health(ctx)
		if err != nil {
			return errMsg(err)
		}
		return healthMsg(health)
	}
}

// waitForEvent blocks on the next bus message. Update must re-issue it
// after every busEventMsg or the stream goes quiet.
func waitForEvent(events <-chan *nats.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return busClosedMsg{}
		}
		return busEventMsg{subject: msg.Subject, data: msg.Data}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchHealth(m.client)
		}

	case tickMsg:
		// Auto-refresh triggered
		return m, tea.Batch(
			tick(m.interval),
			fetchHealth(m.client),
		)

	case healthMsg:
		m.health = Health(msg)
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil

	case busEventMsg:
		m = m.applyEvent(msg)
		return m, waitForEvent(m.events)

	case busClosedMsg:
		m.events = nil
		return m, nil
	}

	return m, nil
}

// applyEvent folds a bus event into the activity counters. Unknown
// subjects and undecodable payloads are ignored.
func (m Model) applyEvent(msg busEventMsg) Model {
	switch msg.subject {
	case bus.SubjectCompressDone:
		var ev compress.Event
		if err := json.Unmarshal(msg.data, &ev); err != nil {
			return m
		}
		m.activity.Compressions++
		m.activity.RatioSum += ev.Stats.Ratio
		m.activity.LastRatio = ev.Stats.Ratio
		m.activity.LastDuration = ev.Duration
		m.activity.Deduped += ev.Stats.MessagesDeduped
		m.ratioHistory = appendToHistory(m.ratioHistory, ev.Stats.Ratio*100)

	case ingest.SubjectFile:
		var ev ingest.FileEvent
		if err := json.Unmarshal(msg.data, &ev); err != nil {
			return m
		}
		m.activity.FilesSynced++
		m.activity.Ingested += ev.Appended
		m.activity.LastSession = ev.Session
		m.ingestHistory = appendToHistory(m.ingestHistory, float64(ev.Appended))
	}
	return m
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Display error state if error exists
	if m.err != nil {
		return m.renderError()
	}

	return m.renderDashboard()
}

// renderError renders the error view
func (m Model) renderError() string {
	header := headerStyle.Render(" UltraContext Monitor ")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach the daemon") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Please ensure:") + "\n"
	content += dimStyle.Render("  1. ultracontextd is running") + "\n"
	content += dimStyle.Render("  2. the server address matches its http_addr") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	box := containerStyle.Render(header + "\n" + content)
	return box
}

// renderDashboard renders the main dashboard view with sparklines and
// the reduction progress bar
func (m Model) renderDashboard() string {
	var content string

	// Header with status badge
	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	version := m.health.Version
	if version == "" {
		version = "dev"
	}

	header := headerStyle.Render(" UltraContext Monitor ")
	headerLine := fmt.Sprintf("%s   %s   %s   %s",
		m.statusBadge(),
		dimStyle.Render("Version:"),
		valueStyle.Render(version),
		dimStyle.Render(lastUpdateStr))

	content += header + "\n"
	content += headerLine + "\n"

	// Store section with the daemon's running totals
	totals := m.health.Totals
	content += "\n" + sectionStyle.Render("┃ Store") + "\n"
	content += labelStyle.Render("  Contexts: ") +
		valueStyle.Render(FormatCount(totals.Contexts)) +
		"   " + labelStyle.Render("Messages: ") +
		valueStyle.Render(FormatCount(totals.Messages)) + "\n"
	content += labelStyle.Render("  Versions: ") +
		valueStyle.Render(FormatCount(totals.Versions)) +
		"   " + labelStyle.Render("Compressions: ") +
		valueStyle.Render(FormatCount(totals.Compressions)) + "\n"

	// Compression section with ratio sparkline
	content += "\n" + sectionStyle.Render("┃ Compression") + "\n"

	ratioSparkline := createSparkline(m.ratioHistory)
	content += labelStyle.Render("  Events: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.activity.Compressions)) +
		"   " + labelStyle.Render("Deduped: ") +
		valueStyle.Render(FormatCount(m.activity.Deduped)) +
		"   " + ratioSparkline + "\n"

	ratioLine := labelStyle.Render("  Ratio: ") +
		valueStyle.Render(FormatRatio(m.activity.LastRatio)) + dimStyle.Render(" last") +
		"  " + valueStyle.Render(FormatRatio(m.activity.MeanRatio())) + dimStyle.Render(" mean")
	if m.activity.Compressions > 0 {
		ratioLine += " " + getRatioBadge(m.activity.LastRatio)
	}
	content += ratioLine + "\n"

	// Reduction progress bar, how much the last run removed
	red := reductionOf(m.activity.LastRatio)
	content += labelStyle.Render("  Reduction: ") +
		m.reduction.ViewAs(red) +
		" " + dimStyle.Render(fmt.Sprintf("%.0f%%", red*100)) + "\n"

	if m.activity.LastDuration > 0 {
		content += labelStyle.Render("  Last Run: ") +
			valueStyle.Render(FormatDuration(m.activity.LastDuration)) + "\n"
	}

	// Ingest section with batch-size sparkline
	content += "\n" + sectionStyle.Render("┃ Ingest") + "\n"

	ingestSparkline := createSparkline(m.ingestHistory)
	content += labelStyle.Render("  Files: ") +
		valueStyle.Render(fmt.Sprintf("%d", m.activity.FilesSynced)) +
		"   " + labelStyle.Render("Messages: ") +
		valueStyle.Render(FormatCount(m.activity.Ingested)) +
		"   " + ingestSparkline + "\n"

	session := m.activity.LastSession
	if session == "" {
		session = "-"
	}
	content += labelStyle.Render("  Session: ") + valueStyle.Render(session) + "\n"

	if m.events == nil {
		content += dimStyle.Render("  Live events off, connect a bus to stream activity") + "\n"
	}

	// Footer with keyboard shortcuts
	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))

	content += "\n" + footer

	// Wrap in container
	return containerStyle.Render(content)
}

// Options configures a dashboard run.
type Options struct {
	// ServerURL is the daemon's HTTP address.
	ServerURL string
	// BusURL optionally connects the live event stream.
	BusURL string
	// Interval is the health poll period.
	Interval time.Duration
}

// Run starts the dashboard and blocks until the user quits.
func Run(opts Options) error {
	if opts.ServerURL == "" {
		opts.ServerURL = "http://127.0.0.1:8420"
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}

	model := NewModel(opts.ServerURL, opts.Interval)

	if opts.BusURL != "" {
		b, err := bus.New(bus.Config{URL: opts.BusURL}, nil)
		if err != nil {
			return fmt.Errorf("connecting to bus: %w", err)
		}
		defer b.Close()

		sub, err := b.Subscribe(bus.SubjectAll)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer func() { _ = sub.Unsubscribe() }()

		model.events = sub.C
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
