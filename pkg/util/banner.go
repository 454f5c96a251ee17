package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
)

const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

var colors = map[string]string{
	"ColorRed":    ColorRed,
	"ColorGreen":  ColorGreen,
	"ColorYellow": ColorYellow,
	"ColorBlue":   ColorBlue,
	"ColorCyan":   ColorCyan,
}

// Banner renders text as ASCII art, every line wrapped in the named color.
// Unknown color names render uncolored.
func Banner(text, color string) string {
	ansi, ok := colors[color]
	var b strings.Builder
	for _, line := range figure.NewFigure(text, "", true).Slicify() {
		if ok {
			b.WriteString(ansi + line + ColorReset)
		} else {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FprintBanner writes the banner to w.
func FprintBanner(w io.Writer, text, color string) {
	fmt.Fprint(w, Banner(text, color))
}

// PrintBanner writes the banner to stdout.
func PrintBanner(text, color string) {
	FprintBanner(os.Stdout, text, color)
}
