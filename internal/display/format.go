package display

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Width is the number of character columns of a standard 16x2 LCD line
const Width = 16

// scrollSeparator sits between the end of a label and its wrapped start
const scrollSeparator = "          "

// FormatDuration renders elapsed/total time as "   m.ss:m.ss   ", fitted to Width.
// Elapsed seconds are rounded up so the counter reaches the total on the last tick.
func FormatDuration(elapsedMs, durationSec int64) string {
	return fit(durationText(elapsedMs, durationSec), Width)
}

// durationText is the unfitted "   m.ss:m.ss   " line
func durationText(elapsedMs, durationSec int64) string {
	seekSec := (elapsedMs + 999) / 1000
	seekMin := seekSec / 60
	seekSec -= seekMin * 60

	durMin := durationSec / 60
	durSec := durationSec - durMin*60

	return fmt.Sprintf("   %d.%02d:%d.%02d   ", seekMin, seekSec, durMin, durSec)
}

// Label builds the first-line text for a track
func Label(artist, title string) string {
	return toLCD(artist) + "-" + toLCD(title)
}

// ScrollBuffer returns the text the first line scrolls through.
// Labels that fit are padded to width and never scroll; longer ones get a
// separator and a copy of their first width characters so the window wraps seamlessly.
func ScrollBuffer(label string, width int) string {
	if len(label) > width {
		return label + scrollSeparator + label[:width]
	}
	return fit(label, width)
}

// fit truncates or right-pads s with spaces to exactly n bytes
func fit(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// toLCD folds text to the printable ASCII subset of the HD44780 character ROM.
// Accents are stripped; anything else outside ASCII becomes '?'.
func toLCD(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 0x20 || r == 0x7f:
			// drop control characters
		case r < 0x80:
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}
