package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
)

// termMu serialises log output with console rendering so a log line never
// lands in the middle of a plan being printed for review.
var termMu sync.Mutex

// TermWidth returns the width of stdout, or 80 when it is not a terminal.
func TermWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

type termWriter struct {
	w io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.w.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{w: os.Stderr}
}

// Print writes s to stdout while holding the terminal lock.
func Print(s string) {
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Print(s)
}

func PrintBanner() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	banner := `
   ___  __   ___   _  __  ____  _  __ ____ _____
  / _ \/ /  / _ | / |/ / / __/ | |/_// __// ___/
 / ___/ /__/ __ |/    / / _/  _>  < / _/ / /__
/_/  /____/_/ |_/_/|_/ /___/ /_/|_|/___/ \___/

     >> plan . review . execute . replan <<
`
	width := TermWidth()
	var b strings.Builder
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(&b, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
	Print(b.String())
}
