package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/easyfire/internal/discovery"
	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/server"
)

// controlBitBytes is how many leading control bytes a frame line shows
const controlBitBytes = 5

// Printer provides methods for printing UI components to a writer.
// This is the primary way CLI commands should output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// SetWidth overrides the detected width
func (p *Printer) SetWidth(width int) *Printer {
	p.width = clampWidth(width)
	return p
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(RenderErrorBox(title, err, troubleshooting, p.width))
}

// PrintFrame prints one frame line followed by its decoded content
func (p *Printer) PrintFrame(f *protocol.Frame, r *protocol.Reading, err error) {
	p.Println(RenderFrame(f, r, err))
}

// PrintSnapshot prints a table of every sensor in msg
func (p *Printer) PrintSnapshot(msg *server.SnapshotMessage) {
	p.Println(RenderSensors(msg.Sensors))
}

// PrintBridges prints one line per discovered bridge
func (p *Printer) PrintBridges(bridges []*discovery.Bridge) {
	if len(bridges) == 0 {
		p.Println(StatusStyle.Render("No bridges found"))
		return
	}
	for _, b := range bridges {
		line := SuccessTitleStyle.Render(SuccessMarker+" "+b.Instance) + "  " +
			ResultValueStyle.Render(b.URL()) + "  " +
			HeaderCommandStyle.Render(fmt.Sprintf("%s %s", b.Transport, b.Version))
		p.Println(line)
	}
}

// sortedKeys returns the keys of m in order so boxes render stably
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderHeader renders a header box
func RenderHeader(title, command string, params map[string]string, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(params) > 0 {
		dividerWidth := width - 6 // Account for border and padding
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		var paramLines []string
		for _, key := range sortedKeys(params) {
			paramLines = append(paramLines,
				HeaderParamKeyStyle.Render(key+":")+" "+HeaderParamValueStyle.Render(params[key]))
		}
		content = lipgloss.JoinVertical(lipgloss.Left, content,
			RenderHorizontalDivider(dividerWidth, "─"), strings.Join(paramLines, "\n"))
	}

	return HeaderBorderStyle(width).Render(content)
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details map[string]string, width int) string {
	lines := []string{"", SuccessTitleStyle.Render("   " + SuccessMarker + "  " + title), ""}
	for _, key := range sortedKeys(details) {
		lines = append(lines, ResultKeyStyle.Render("   "+key+":")+" "+ResultValueStyle.Render(details[key]))
	}
	lines = append(lines, "")
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	lines := []string{"", ErrorTitleStyle.Render("   " + FailureMarker + "  FAILED  ─  " + title), ""}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+err.Error()), "")
	}

	if len(troubleshooting) > 0 {
		troubleLines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range troubleshooting {
			troubleLines = append(troubleLines, TroubleshootingItemStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(troubleLines, "\n")), "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderFrame renders a frame as a summary line plus a detail line:
//
//	SENSE    #5   len 15  chk 0x30 ok
//	         21.5 0.0 ... -12.3
func RenderFrame(f *protocol.Frame, r *protocol.Reading, err error) string {
	tag := FrameSenseStyle.Render(fmt.Sprintf("%-8s", strings.ToUpper(f.Kind.String())))
	if f.Kind == protocol.FrameControl {
		tag = FrameControlStyle.Render(fmt.Sprintf("%-8s", strings.ToUpper(f.Kind.String())))
	}

	check := SuccessTitleStyle.Render("ok")
	if !f.Valid() {
		check = ErrorTitleStyle.Render(fmt.Sprintf("bad (computed 0x%02x)", f.ComputedChecksum))
	}
	line := fmt.Sprintf("%s #%-3d len %-3d chk 0x%02x %s", tag, f.Counter, len(f.Payload), f.ReceivedChecksum, check)

	var detail string
	switch {
	case err != nil:
		detail = ErrorMessageStyle.Render(err.Error())
	case r == nil:
	case r.Kind == protocol.FrameSense:
		temps := make([]string, len(r.Temperatures))
		for i, t := range r.Temperatures {
			temps[i] = t.String()
		}
		detail = strings.Join(temps, " ")
	case r.Kind == protocol.FrameControl:
		n := min(controlBitBytes, len(r.Control))
		bits := make([]string, n)
		for i := 0; i < n; i++ {
			bits[i] = protocol.BitString(r.Control[i])
		}
		detail = strings.Join(bits, " ")
	}
	if detail == "" {
		return line
	}
	return line + "\n         " + detail
}

// RenderSensors renders sensors as aligned name/value rows
func RenderSensors(sensors []server.SensorJSON) string {
	rows := make([]string, 0, len(sensors))
	for _, s := range sensors {
		rows = append(rows, SensorNameStyle.Render(s.Name)+" "+RenderValue(s))
	}
	return strings.Join(rows, "\n")
}

// RenderValue renders a sensor value with its unit, or "None" when unset
func RenderValue(s server.SensorJSON) string {
	if !s.Valid || s.Value == nil {
		return SensorMissingStyle.Render("None")
	}
	switch v := s.Value.(type) {
	case bool:
		if v {
			return FlagOnStyle.Render(FlagOnMarker + " on")
		}
		return FlagOffStyle.Render(FlagOffMarker + " off")
	case float64:
		style := SensorValueStyle
		switch {
		case v < 0:
			style = style.Foreground(ColdColor)
		case v >= 70:
			style = style.Foreground(WarningColor)
		}
		return style.Render(fmt.Sprintf("%.1f %s", v, s.Unit))
	default:
		return SensorValueStyle.Render(fmt.Sprint(v))
	}
}
