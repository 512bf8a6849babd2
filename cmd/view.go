package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1F47E/go-proximity/pkg/geo"
	"github.com/1F47E/go-proximity/pkg/models"
	"github.com/1F47E/go-proximity/pkg/proximity"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginTop(1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

const maxNearbyRows = 5

// snapshot is what the watch screen shows for one position update
type snapshot struct {
	Sample  models.PositionSample
	Inside  bool
	Nearby  []proximity.Nearby[models.Stop]
	Dropped int64
}

// evaluate runs the service queries for sample, which may be older than the
// last-known position when the stream is drained. stops may be nil.
func evaluate(svc *proximity.Service, stops *geo.StopIndex, sample models.PositionSample, dropped int64) snapshot {
	snap := snapshot{
		Sample:  sample,
		Inside:  svc.IsInServiceArea(&sample),
		Dropped: dropped,
	}
	if stops != nil && sample.Coords != nil {
		snap.Nearby = proximity.RankFrom[models.Stop](*sample.Coords, stops, svc.Config().NearbyRadius)
	}
	return snap
}

type sampleMsg snapshot
type labelMsg string
type streamClosedMsg struct{}

type watchModel struct {
	spinner spinner.Model
	svc     *proximity.Service
	stream  *proximity.Stream
	stops   *geo.StopIndex
	source  string

	describe bool
	label    string

	current *snapshot
	updates int
	closed  bool
	width   int
}

func newWatchModel(svc *proximity.Service, stream *proximity.Stream, stops *geo.StopIndex, source string, describe bool) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return watchModel{
		spinner:  s,
		svc:      svc,
		stream:   stream,
		stops:    stops,
		source:   source,
		describe: describe,
		width:    80,
	}
}

// waitForSample blocks on the stream and turns the next sample into a message
func waitForSample(svc *proximity.Service, stream *proximity.Stream, stops *geo.StopIndex) tea.Cmd {
	return func() tea.Msg {
		sample, ok := <-stream.C()
		if !ok {
			return streamClosedMsg{}
		}
		return sampleMsg(evaluate(svc, stops, sample, stream.Dropped()))
	}
}

func describeCmd(svc *proximity.Service, c models.Coordinate) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return labelMsg(svc.DescribeLocation(ctx, c.Lat, c.Lon))
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForSample(m.svc, m.stream, m.stops),
	)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sampleMsg:
		snap := snapshot(msg)
		m.current = &snap
		m.updates++
		cmds := []tea.Cmd{waitForSample(m.svc, m.stream, m.stops)}
		if m.describe && snap.Sample.Coords != nil {
			cmds = append(cmds, describeCmd(m.svc, *snap.Sample.Coords))
		}
		return m, tea.Batch(cmds...)

	case labelMsg:
		m.label = string(msg)
		return m, nil

	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("📍 Proximity Watch"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("source: " + m.source))
	b.WriteString("\n\n")

	if m.current == nil {
		b.WriteString(m.spinner.View() + " Waiting for the first fix...\n")
	} else {
		b.WriteString(renderSnapshot(*m.current, m.label, m.updates))
	}

	if m.closed {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Position stream closed"))
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Press 'q' to quit"))
	return b.String()
}

func renderSnapshot(s snapshot, label string, updates int) string {
	var b strings.Builder

	c := s.Sample.Coords
	if c == nil {
		b.WriteString(errorStyle.Render("No coordinates in the latest update") + "\n")
	} else {
		b.WriteString(fmt.Sprintf("Position: %s\n", statStyle.Render(fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon))))
	}
	if s.Sample.Accuracy != nil {
		b.WriteString(fmt.Sprintf("Accuracy: %s\n", statStyle.Render(fmt.Sprintf("±%.0f m", *s.Sample.Accuracy))))
	}
	if label != "" {
		b.WriteString(fmt.Sprintf("Place: %s\n", statStyle.Render(label)))
	}
	if s.Inside {
		b.WriteString(successStyle.Render("✓ Inside the service area") + "\n")
	} else {
		b.WriteString(errorStyle.Render("✗ Outside the service area") + "\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("updates: %d  dropped: %d  at %s",
		updates, s.Dropped, s.Sample.Timestamp.Format("15:04:05"))))

	if len(s.Nearby) > 0 {
		var rows strings.Builder
		rows.WriteString(subtitleStyle.Render("Nearby stops") + "\n\n")
		for i, n := range s.Nearby {
			if i == maxNearbyRows {
				rows.WriteString(dimStyle.Render(fmt.Sprintf("… and %d more", len(s.Nearby)-maxNearbyRows)))
				break
			}
			rows.WriteString(fmt.Sprintf("%s  %s\n", statStyle.Render(fmt.Sprintf("%5.0f m", n.DistanceMeters)), n.Item.Name))
		}
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(strings.TrimRight(rows.String(), "\n")))
	}

	return b.String()
}

// plainLine is the non-interactive rendering of a snapshot
func plainLine(s snapshot) string {
	if s.Sample.Coords == nil {
		return "no fix"
	}
	area := "outside"
	if s.Inside {
		area = "inside"
	}
	line := fmt.Sprintf("%.6f,%.6f %s", s.Sample.Coords.Lat, s.Sample.Coords.Lon, area)
	if len(s.Nearby) > 0 {
		line += fmt.Sprintf(" nearest=%s (%.0f m)", s.Nearby[0].Item.ID, s.Nearby[0].DistanceMeters)
	}
	if s.Dropped > 0 {
		line += fmt.Sprintf(" dropped=%d", s.Dropped)
	}
	return line
}
