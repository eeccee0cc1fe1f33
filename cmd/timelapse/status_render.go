package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// tone classifies a status line for the operator.
type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneFail
)

var toneStyles = map[tone]struct {
	label string
	color text.Colors
}{
	toneInfo: {"INFO", text.Colors{text.FgBlue}},
	toneOK:   {"OK", text.Colors{text.FgGreen}},
	toneWarn: {"WARN", text.Colors{text.FgYellow}},
	toneFail: {"FAIL", text.Colors{text.FgRed, text.Bold}},
}

const (
	labelWidth = 16
	lineIndent = "  "
)

// statusLine renders "  Label:           [TONE] message".
func statusLine(label string, t tone, message string, colorize bool) string {
	style := toneStyles[t]
	badge := "[" + style.label + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", lineIndent, labelWidth, label+":", badge)
	if !colorize {
		return line
	}
	return text.Escape(line, style.color.EscapeSeq())
}

func printSection(out io.Writer, title string, colorize bool) {
	title = strings.TrimSpace(title)
	rule := strings.Repeat("─", len([]rune(title)))
	if colorize {
		seq := text.Colors{text.FgCyan, text.Bold}.EscapeSeq()
		title, rule = text.Escape(title, seq), text.Escape(rule, seq)
	}
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, rule)
}

// shouldColorize reports whether w is an interactive terminal and NO_COLOR is unset.
func shouldColorize(w io.Writer) bool {
	if v := os.Getenv("NO_COLOR"); v != "" && v != "0" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
