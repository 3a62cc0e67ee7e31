// Package logger prints tagged, colored status lines to stdout.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}

var (
	tagColor     = color.New(color.FgCyan, color.Bold)
	infoColor    = color.New(color.FgWhite)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// tagWidth pads tags so messages line up in the console.
const tagWidth = 8

func line(c *color.Color, symbol, tag, msg string) {
	ts := dimColor.Sprint(time.Now().Format("15:04:05"))
	padded := tag
	if len(padded) < tagWidth {
		padded += strings.Repeat(" ", tagWidth-len(padded))
	}
	fmt.Fprintf(color.Output, "%s %s %s %s\n", ts, c.Sprint(symbol), tagColor.Sprint(padded), c.Sprint(msg))
}

// Info prints a neutral status message.
func Info(tag, msg string) {
	line(infoColor, "•", tag, msg)
}

// Success prints a completion message.
func Success(tag, msg string) {
	line(successColor, "✓", tag, msg)
}

// Warn prints a recoverable problem.
func Warn(tag, msg string) {
	line(warnColor, "!", tag, msg)
}

// Error prints a failure.
func Error(tag, msg string) {
	line(errorColor, "✗", tag, msg)
}

// Banner prints the startup banner.
func Banner(version string) {
	if version == "" {
		version = "dev"
	}
	tagColor.Fprintln(color.Output, "")
	tagColor.Fprintln(color.Output, "  ┌─────────────────────────────┐")
	tagColor.Fprintf(color.Output, "  │  sectormap %-17s│\n", version)
	tagColor.Fprintln(color.Output, "  └─────────────────────────────┘")
	fmt.Fprintln(color.Output)
}

// Section prints a heading for a block of Stats lines.
func Section(title string) {
	fmt.Fprintln(color.Output)
	tagColor.Fprintf(color.Output, "── %s ──\n", title)
}

// Stats prints a key/value statistic.
func Stats(key string, value interface{}) {
	fmt.Fprintf(color.Output, "   %-20s %s\n", key, successColor.Sprint(value))
}

// Server announces the listen address.
func Server(addr string) {
	line(successColor, "➜", "Server", "Listening on http://"+addr)
}
