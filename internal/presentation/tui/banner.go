package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the scenaria banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  ___  ___ ___ _ __   __ _ _ __(_) __ _ ", "#34d399"},
		{" / __|/ __/ _ \\ '_ \\ / _` | '__| |/ _` |", "#2dd4bf"},
		{" \\__ \\ (_|  __/ | | | (_| | |  | | (_| |", "#22d3ee"},
		{" |___/\\___\\___|_| |_|\\__,_|_|  |_|\\__,_|", "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
