package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorItalic = "\033[3m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorGray   = "\033[90m"

	ClearLine = "\033[2K\r"
	CursorUp  = "\033[A"
)

const (
	DefaultWaveWidth = 60
	// StatusTextWidth fits " Recording [00:00 / 15:00] Press Enter to stop".
	StatusTextWidth = 45
	minWaveWidth    = 10
	maxHeaderWidth  = 66
)

const (
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	boxHorizontal  = "─"
	boxVertical    = "│"
	boxTeeRight    = "├"
)

// Palette applies ANSI colours, or nothing when disabled.
type Palette struct {
	Enabled bool
}

func (p Palette) paint(code string, s string) string {
	if !p.Enabled || s == "" {
		return s
	}
	return code + s + ColorReset
}

func (p Palette) Header(s string) string   { return p.paint(ColorBold+ColorBlue, s) }
func (p Palette) Action(s string) string   { return p.paint(ColorCyan, s) }
func (p Palette) Info(s string) string     { return p.paint(ColorItalic+ColorYellow, s) }
func (p Palette) Metadata(s string) string { return p.paint(ColorGray, s) }
func (p Palette) Success(s string) string  { return p.paint(ColorGreen, s) }
func (p Palette) Error(s string) string    { return p.paint(ColorRed, s) }
func (p Palette) Warn(s string) string     { return p.paint(ColorYellow, s) }
func (p Palette) Dim(s string) string      { return p.paint(ColorDim, s) }
func (p Palette) White(s string) string    { return p.paint(ColorWhite, s) }

// FormatTime renders whole seconds as MM:SS.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatDuration renders processing time the way the stats line shows it.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// WaveWidth picks the meter width for a terminal of termWidth columns.
func WaveWidth(termWidth int) int {
	if termWidth >= DefaultWaveWidth+StatusTextWidth {
		return DefaultWaveWidth
	}
	return max(minWaveWidth, termWidth-2)
}

// RecordingLine renders the live recording status. Narrow terminals get the
// wave on its own line with the cursor left on the wave line. Line breaks are
// "\r\n" because the key listener's raw mode disables output post-processing.
func RecordingLine(p Palette, wave string, elapsed int, maxSeconds int, termWidth int) string {
	status := fmt.Sprintf("%s [%s / %s] %s",
		p.Header("Recording"), p.Warn(FormatTime(elapsed)), FormatTime(maxSeconds), p.Metadata("Press Enter to stop"))
	if termWidth >= utf8.RuneCountInString(wave)+StatusTextWidth {
		return ClearLine + p.Action(wave) + " " + status
	}
	return ClearLine + p.Action(wave) + "\r\n" + "\033[2K" + status + CursorUp + "\r"
}

// StartupHeader renders the boxed banner with the model and vocabulary sources.
func StartupHeader(p Palette, model string, vocabSources []string, termWidth int) string {
	width := min(max(termWidth, 20), maxHeaderWidth)
	inner := width - 5
	label := " WHSPR "

	var b strings.Builder
	b.WriteString(boxTopLeft + boxHorizontal + p.Header(label))
	b.WriteString(p.Dim(strings.Repeat(boxHorizontal, max(0, width-utf8.RuneCountInString(label)-3)) + boxTopRight))
	b.WriteString("\n")

	row := func(name string, value string, colour func(string) string) {
		plain := name + value
		pad := max(0, inner-utf8.RuneCountInString(plain))
		b.WriteString(p.Dim(boxVertical+"  ") + p.Metadata(name) + colour(value) + strings.Repeat(" ", pad) + p.Dim(" "+boxVertical) + "\n")
	}
	row("Model: ", model, p.White)
	if len(vocabSources) > 0 {
		row("Vocab: ", strings.Join(vocabSources, " + "), p.Info)
	}

	b.WriteString(p.Dim(boxBottomLeft + strings.Repeat(boxHorizontal, width-2) + boxBottomRight))
	b.WriteString("\n")
	return b.String()
}

// CompactStats renders "Audio: x • Processing: y • Cost: z". Cost is omitted when empty.
func CompactStats(p Palette, audio string, processing string, cost string) string {
	s := p.Metadata("Audio: ") + p.White(audio) + p.Metadata(" • Processing: ") + p.White(processing)
	if cost != "" {
		s += p.Metadata(" • Cost: ") + p.White(cost)
	}
	return s
}

// Status renders a pipeline step line prefixed with "├─ ".
func Status(p Palette, message string) string {
	return p.Dim(boxTeeRight+boxHorizontal+" ") + p.Action(message)
}
