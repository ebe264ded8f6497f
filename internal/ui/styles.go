package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // headers, borders, Sense frames
	SuccessColor = lipgloss.Color("#43BF6D") // valid readings, flags on
	ErrorColor   = lipgloss.Color("#FF5555")
	WarningColor = lipgloss.Color("#FFA500") // hot readings, Control frames
	ColdColor    = lipgloss.Color("#5FAFFF") // sub-zero readings
	MutedColor   = lipgloss.Color("#626262")
	TextColor    = lipgloss.Color("#FFFFFF")
)

// Terminal width bounds for boxed output
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

// Column widths of the sensor table
const (
	nameColumn  = 18
	valueColumn = 10
)

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func bold(c lipgloss.Color) lipgloss.Style {
	return fg(c).Bold(true)
}

var (
	// Command headers: title, subtitle and key/value parameters
	HeaderTitleStyle      = bold(TextColor).PaddingLeft(2)
	HeaderCommandStyle    = fg(MutedColor).PaddingLeft(2)
	HeaderParamKeyStyle   = fg(MutedColor).PaddingLeft(2)
	HeaderParamValueStyle = fg(TextColor)

	SuccessTitleStyle = bold(SuccessColor)
	ErrorTitleStyle   = bold(ErrorColor)
	ErrorMessageStyle = fg(ErrorColor)

	ResultKeyStyle   = fg(MutedColor).Width(nameColumn)
	ResultValueStyle = fg(TextColor)

	TroubleshootingTitleStyle = bold(MutedColor)
	TroubleshootingItemStyle  = fg(MutedColor)

	// Sensor table
	SensorNameStyle    = fg(TextColor).Width(nameColumn)
	SensorValueStyle   = bold(SuccessColor).Width(valueColumn).Align(lipgloss.Right)
	SensorMissingStyle = fg(MutedColor).Width(valueColumn).Align(lipgloss.Right)
	FlagOnStyle        = bold(SuccessColor)
	FlagOffStyle       = fg(MutedColor)

	StatusStyle = fg(MutedColor).Italic(true).PaddingLeft(2)
	HelpStyle   = fg(MutedColor).PaddingLeft(2)

	// Frame tags in dump and decode output
	FrameSenseStyle   = bold(PrimaryColor)
	FrameControlStyle = bold(WarningColor)
)

const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	FlagOnMarker  = "●"
	FlagOffMarker = "○"
)

// GetTerminalWidth returns the stdout terminal width clamped to the content
// bounds, or MinTerminalWidth when stdout is not a terminal.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	return max(MinTerminalWidth, min(MaxContentWidth, width))
}

func box(border lipgloss.Border, color lipgloss.Color, width int) lipgloss.Style {
	// Width excludes the two border columns
	return lipgloss.NewStyle().Border(border).BorderForeground(color).Width(width - 2)
}

// HeaderBorderStyle frames command headers
func HeaderBorderStyle(width int) lipgloss.Style {
	return box(lipgloss.RoundedBorder(), PrimaryColor, width)
}

// SuccessBoxStyle frames result summaries
func SuccessBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.DoubleBorder(), SuccessColor, width).Padding(0, 2)
}

// ErrorBoxStyle frames failures
func ErrorBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.DoubleBorder(), ErrorColor, width).Padding(0, 2)
}

// TroubleshootingBoxStyle is nested inside an error box
func TroubleshootingBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.RoundedBorder(), MutedColor, width-6).Padding(0, 1)
}

// RenderHorizontalDivider repeats char across width
func RenderHorizontalDivider(width int, char string) string {
	return fg(PrimaryColor).Render(strings.Repeat(char, width))
}
