package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

var (
	consoleMu  sync.Mutex
	consoleOut io.Writer = os.Stdout
	useColor             = isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == ""
)

// SetConsoleOutput redirects console lines and disables colors. It returns
// a function restoring the previous settings.
func SetConsoleOutput(w io.Writer) (restore func()) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	prevOut, prevColor := consoleOut, useColor
	consoleOut, useColor = w, false
	return func() {
		consoleMu.Lock()
		defer consoleMu.Unlock()
		consoleOut, useColor = prevOut, prevColor
	}
}

func TimeHM() string {
	return time.Now().Format("15:04")
}

func Colorize(s string, color string) string {
	if color == "" || !useColor {
		return s
	}
	return color + s + ColorReset
}

// Line prints a single console line prefixed with HH:MM. Lines from
// concurrent goroutines do not interleave.
func Line(label string, labelColor string, msg string) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	if label != "" {
		fmt.Fprintf(consoleOut, "%s %s %s\n", TimeHM(), Colorize(label, labelColor), msg)
		return
	}
	fmt.Fprintf(consoleOut, "%s %s\n", TimeHM(), msg)
}

func Linef(label string, labelColor string, format string, args ...any) {
	Line(label, labelColor, fmt.Sprintf(format, args...))
}
