package sink

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"soilnode/internal/telemetry"
)

// ErrDisplayClosed is returned by TUIWriter once the user quit the dashboard.
var ErrDisplayClosed = errors.New("tui closed")

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// recordMsg carries an accepted record and its log line.
type recordMsg struct {
	line string
	rec  telemetry.Record
}

// rejectMsg carries a line for a record that was dropped.
type rejectMsg struct{ line string }

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

const (
	maxLogLines   = 1000
	maxTableRows  = 8
	chromeLines   = 3 // two dividers and the key help
	minReasonCols = 10
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	rejectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	statusStyle = map[telemetry.Status]lipgloss.Style{
		telemetry.StatusSystemProblem:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		telemetry.StatusSensorDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		telemetry.StatusBatteryLow:         lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		telemetry.StatusMoistureWarn:       lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		telemetry.StatusNormal:             lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

// TUIWriter renders incoming records in a bubbletea dashboard: a table with
// the latest record per device and sensor above a scrolling record log.
type TUIWriter struct {
	program teaProgram
	done    chan struct{}
}

// NewTUIWriter starts the dashboard on the alternate screen.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
	}()
	return w
}

// Done is closed once the dashboard exits.
func (w *TUIWriter) Done() <-chan struct{} {
	return w.done
}

// Close quits the dashboard and waits for the terminal to be restored.
func (w *TUIWriter) Close() {
	if w.closed() {
		return
	}
	w.program.Send(tea.QuitMsg{})
	if w.done != nil {
		<-w.done
	}
}

func (w *TUIWriter) closed() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Write implements RecordWriter.
func (w *TUIWriter) Write(r telemetry.Record) error {
	if w.closed() {
		return ErrDisplayClosed
	}
	w.program.Send(recordMsg{line: formatRecord(r), rec: r})
	return nil
}

// Reject implements RejectObserver.
func (w *TUIWriter) Reject(reason string, size int) {
	if w.closed() {
		return
	}
	line := fmt.Sprintf("%s %s (%d bytes)", rejectStyle.Render("rejected"), reason, size)
	w.program.Send(rejectMsg{line: line})
}

// LogWriter returns an io.Writer that feeds log output into the record log,
// so logging does not scribble over the alternate screen.
func (w *TUIWriter) LogWriter() *TUILogWriter {
	return &TUILogWriter{w: w}
}

// TUILogWriter turns each written log entry into a viewport line.
type TUILogWriter struct{ w *TUIWriter }

func (l *TUILogWriter) Write(p []byte) (int, error) {
	if !l.w.closed() {
		l.w.program.Send(logMsg{line: strings.TrimRight(string(p), "\n")})
	}
	return len(p), nil
}

func formatRecord(r telemetry.Record) string {
	status := string(r.StatusBit)
	if st, ok := statusStyle[r.StatusBit]; ok {
		status = st.Render(status)
	}
	line := fmt.Sprintf("%s %s/%d soil=%d status=%s batt=%sV %d%%",
		r.Timestamp, r.DeviceID, r.SensorID, r.SoilValue, status, r.BattVolt, r.BattPct)
	if r.Reason != "" {
		line += " reason=" + r.Reason
	}
	return line
}

type nodeKey struct {
	device string
	sensor int
}

type tuiModel struct {
	title  string
	table  table.Model
	vp     viewport.Model
	latest map[nodeKey]telemetry.Record
	lines  []string

	accepted int
	rejected int

	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Device", Width: 14},
		{Title: "Sensor", Width: 6},
		{Title: "Soil", Width: 6},
		{Title: "Status", Width: 6},
		{Title: "Battery", Width: 10},
		{Title: "Last seen", Width: 19},
		{Title: "Reason", Width: 30},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(2))
	return tuiModel{
		title:      title,
		table:      t,
		vp:         viewport.New(0, 0),
		latest:     make(map[nodeKey]telemetry.Record),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.resizeReasonColumn()
		m.vp.Width = msg.Width
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case recordMsg:
		m.latest[nodeKey{msg.rec.DeviceID, msg.rec.SensorID}] = msg.rec
		m.accepted++
		m.refreshTable()
		m.appendLine(msg.line)
	case rejectMsg:
		m.rejected++
		m.appendLine(msg.line)
	case logMsg:
		m.appendLine(msg.line)
	}
	return m, nil
}

func (m *tuiModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	m.refreshViewport()
}

func (m *tuiModel) refreshTable() {
	keys := make([]nodeKey, 0, len(m.latest))
	for k := range m.latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].device != keys[j].device {
			return keys[i].device < keys[j].device
		}
		return keys[i].sensor < keys[j].sensor
	})
	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		r := m.latest[k]
		rows = append(rows, table.Row{
			r.DeviceID,
			strconv.Itoa(r.SensorID),
			strconv.Itoa(r.SoilValue),
			string(r.StatusBit),
			fmt.Sprintf("%sV %d%%", r.BattVolt, r.BattPct),
			r.Timestamp,
			r.Reason,
		})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(min(len(rows), maxTableRows) + 1)
	m.layout()
}

// resizeReasonColumn gives the reason column whatever width is left.
func (m *tuiModel) resizeReasonColumn() {
	cols := m.table.Columns()
	used := 0
	for _, c := range cols[:len(cols)-1] {
		used += c.Width + 2
	}
	cols[len(cols)-1].Width = max(m.width-used-2, minReasonCols)
	m.table.SetColumns(cols)
}

func (m *tuiModel) layout() {
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.table.View()) - chromeLines
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.lines {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return titleStyle.Render(m.title) + "\n" +
		fmt.Sprintf("accepted %d  rejected %d  wrap %s  autoscroll %s",
			m.accepted, m.rejected, onOff(m.wrap), onOff(m.autoscroll))
}

func (m tuiModel) View() string {
	divider := strings.Repeat("─", m.width)
	return strings.Join([]string{
		m.renderHeader(),
		m.table.View(),
		divider,
		m.vp.View(),
		divider,
		helpStyle.Render("q quit  w wrap  s autoscroll  ↑/↓ scroll"),
	}, "\n")
}
