package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Level represents the log level
type Level int

const (
	LevelDebug Level = iota // Debug information (only shown with --verbose)
	LevelInfo               // Important steps
	LevelTool               // Tool call related
	LevelAgent              // Model responses
	LevelError              // Error messages
)

// Palette used for every section; callers never see raw escape codes.
var (
	colorDebug  = []color.Attribute{color.FgHiBlack}
	colorInfo   = []color.Attribute{color.FgBlue}
	colorWarn   = []color.Attribute{color.FgYellow}
	colorError  = []color.Attribute{color.FgRed}
	colorTool   = []color.Attribute{color.FgCyan}
	colorOK     = []color.Attribute{color.FgGreen}
	colorBanner = []color.Attribute{color.FgMagenta}
)

// Logger writes levelled, sectioned output for a repro session
type Logger struct {
	writer    io.Writer
	level     Level
	showTime  bool
	colorMode bool
}

// NewLogger creates a new Logger instance
func NewLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		writer:    w,
		level:     level,
		showTime:  true,
		colorMode: true,
	}
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *Logger {
	return NewLogger(io.Discard, LevelError+1)
}

// SetColorMode enables or disables colored output
func (l *Logger) SetColorMode(enabled bool) {
	l.colorMode = enabled
}

// SetShowTime enables or disables timestamp display
func (l *Logger) SetShowTime(enabled bool) {
	l.showTime = enabled
}

// Debug logs debug information (only shown in verbose mode)
func (l *Logger) Debug(format string, args ...any) {
	if l.level <= LevelDebug {
		l.log(colorDebug, "DEBUG", format, args...)
	}
}

// Info logs general information
func (l *Logger) Info(format string, args ...any) {
	if l.level <= LevelInfo {
		l.log(colorInfo, "INFO", format, args...)
	}
}

// Warn logs something unexpected that does not stop the run
func (l *Logger) Warn(format string, args ...any) {
	if l.level <= LevelAgent {
		l.log(colorWarn, "WARN", format, args...)
	}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...any) {
	if l.level <= LevelError {
		l.log(colorError, "ERROR", format, args...)
	}
}

// ToolCall logs a tool call with its parameters
func (l *Logger) ToolCall(toolName, callID, params string) {
	if l.level <= LevelTool {
		header := fmt.Sprintf("🔧 Tool Call: %s (id: %s)", toolName, callID)
		l.printSection(colorTool, header, l.formatJSON(params))
	}
}

// ToolResult logs a tool execution result
func (l *Logger) ToolResult(toolName string, success bool, output string, duration time.Duration) {
	if l.level > LevelTool {
		return
	}

	status := "✅ Success"
	attrs := colorOK
	if !success {
		status = "❌ Failed"
		attrs = colorError
	}

	header := fmt.Sprintf("📊 Tool Result: %s [%s] (%s)", toolName, status, duration.Round(time.Microsecond))
	l.printSection(attrs, header, truncate(output, 2, 500))
}

// FinalResponse prints the model's final content quoted, so an empty reply
// shows up as "" instead of a blank section.
func (l *Logger) FinalResponse(convention, content string) {
	if l.level > LevelAgent {
		return
	}

	header := fmt.Sprintf("💬 Final Response (convention: %s, %d chars)", convention, len(content))
	body := fmt.Sprintf("%q", content)
	if content == "" {
		l.printSection(colorWarn, header, body)
		return
	}
	l.printSection(colorOK, header, body)
}

// SessionStart logs the beginning of a repro session
func (l *Logger) SessionStart(title, subtitle string) {
	l.printBanner(colorBanner, "🚀 "+title, subtitle)
}

// SessionEnd logs the completion of a session with statistics
func (l *Logger) SessionEnd(duration time.Duration, toolCallCount int, emptyReply bool) {
	summary := fmt.Sprintf("Duration: %s | Tool Calls: %d", duration.Round(time.Millisecond), toolCallCount)
	if emptyReply {
		l.printBanner(colorWarn, "⚠️  Session Completed: empty final response", summary)
		return
	}
	l.printBanner(colorOK, "✨ Session Completed", summary)
}

// Table prints rows as an aligned plain-text table.
func (l *Logger) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	fmt.Fprintln(l.writer, l.paint(colorBanner, line(headers), true))
	for _, row := range rows {
		fmt.Fprintln(l.writer, line(row))
	}
}

// log is the core logging method
func (l *Logger) log(attrs []color.Attribute, level, format string, args ...any) {
	timestamp := ""
	if l.showTime {
		timestamp = time.Now().Format("15:04:05") + " "
	}

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.writer, "%s %s\n", l.paint(attrs, timestamp+"["+level+"]", false), msg)
}

// printSection prints a formatted section with header and content
func (l *Logger) printSection(attrs []color.Attribute, header, content string) {
	separator := strings.Repeat("─", 60)

	fmt.Fprintf(l.writer, "\n%s\n", l.paint(attrs, header, true))
	fmt.Fprintf(l.writer, "%s\n", l.paint(attrs, separator, false))
	fmt.Fprintf(l.writer, "%s\n", content)
	fmt.Fprintf(l.writer, "%s\n\n", l.paint(attrs, separator, false))
}

// printBanner prints a prominent banner for session start/end
func (l *Logger) printBanner(attrs []color.Attribute, title, subtitle string) {
	separator := strings.Repeat("═", 70)

	fmt.Fprintf(l.writer, "\n%s\n", l.paint(attrs, separator, true))
	fmt.Fprintf(l.writer, "%s\n", l.paint(attrs, "  "+title, true))
	if subtitle != "" {
		fmt.Fprintf(l.writer, "%s\n", l.paint(attrs, "  "+subtitle, false))
	}
	fmt.Fprintf(l.writer, "%s\n\n", l.paint(attrs, separator, true))
}

func (l *Logger) paint(attrs []color.Attribute, s string, bold bool) string {
	if !l.colorMode {
		return s
	}
	c := color.New(attrs...)
	if bold {
		c.Add(color.Bold)
	}
	c.EnableColor()
	return c.Sprint(s)
}

// truncate keeps at most maxLines lines and maxLength bytes of output
func truncate(output string, maxLines, maxLength int) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	display := output
	truncatedLines := false

	if len(lines) > maxLines {
		display = strings.Join(lines[:maxLines], "\n")
		truncatedLines = true
	}

	if len(display) > maxLength {
		display = display[:maxLength] + "..."
	} else if truncatedLines {
		display += "\n..."
	}

	return display
}

// formatJSON formats JSON strings adaptively based on length
// Short JSON (< 80 chars) stays compact, long JSON gets pretty-printed
func (l *Logger) formatJSON(jsonStr string) string {
	compact := strings.TrimSpace(jsonStr)
	if len(compact) < 80 {
		return compact
	}

	var obj any
	if err := json.Unmarshal([]byte(compact), &obj); err != nil {
		return compact
	}

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return compact
	}

	return string(pretty)
}
