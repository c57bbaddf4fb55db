package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"pattern-trader/pkg/utils"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates a new Output instance. Colours follow color.NoColor,
// which fatih/color derives from the terminal.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
	}
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(color.New(color.FgGreen), format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(color.New(color.FgRed), format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(color.New(color.FgYellow), format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(color.New(color.FgCyan), format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(color.New(color.Bold), format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(color.New(color.Faint), format, args...)
}

func (o *Output) colored(c *color.Color, format string, args ...interface{}) {
	c.Fprintf(o.writer, format+"\n", args...)
}

// PnLColor returns the colour for a signed value.
func PnLColor(v float64) *color.Color {
	switch {
	case v > 0:
		return color.New(color.FgGreen)
	case v < 0:
		return color.New(color.FgRed)
	}
	return color.New(color.FgWhite)
}

// FormatPercent formats a percentage with sign and colour.
func (o *Output) FormatPercent(pct float64) string {
	return PnLColor(pct).Sprint(utils.FormatPercent(pct))
}

// FormatPnL formats a profit or loss with sign and colour.
func (o *Output) FormatPnL(pnl float64) string {
	return PnLColor(pnl).Sprint(utils.FormatPnL(pnl))
}

// Direction colours an up/down label.
func (o *Output) Direction(label string) string {
	switch label {
	case "up":
		return color.GreenString("▲ up")
	case "down":
		return color.RedString("▼ down")
	case "", "none":
		return "-"
	}
	return color.YellowString(label)
}

// Result colours a trade result.
func (o *Output) Result(result int) string {
	switch {
	case result > 0:
		return color.GreenString("winner")
	case result < 0:
		return color.RedString("loser")
	}
	return color.New(color.Faint).Sprint("neutral")
}

// NewTable creates a table writer mirrored to the output.
func (o *Output) NewTable(title string, headers ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(o.writer)
	t.SetStyle(tableStyle())
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row(headers))
	return t
}

func tableStyle() table.Style {
	style := table.StyleRounded
	style.Format.Header = text.FormatUpper
	if color.NoColor {
		style.Color = table.ColorOptions{}
	} else {
		style.Color.Header = text.Colors{text.Bold, text.FgHiCyan}
	}
	return style
}
