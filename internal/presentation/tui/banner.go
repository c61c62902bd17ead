package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the brickrt banner to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{" _          _      _        _   ", "#818cf8"},
		{"| |__  _ __(_) ___| | ___ __| |_ ", "#a78bfa"},
		{"| '_ \\| '__| |/ __| |/ / '__| __|", "#c084fc"},
		{"| |_) | |  | | (__|   <| |  | |_ ", "#e879f9"},
		{"|_.__/|_|  |_|\\___|_|\\_\\_|   \\__|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
