package ui

import (
	"strings"
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	cases := map[int]string{0: "00:00", 7: "00:07", 65: "01:05", 900: "15:00", -3: "00:00"}
	for in, want := range cases {
		if got := FormatTime(in); got != want {
			t.Fatalf("FormatTime(%d) = %q want %q", in, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	if got := FormatDuration(450 * time.Millisecond); got != "450ms" {
		t.Fatalf("unexpected %q", got)
	}
	if got := FormatDuration(2340 * time.Millisecond); got != "2.3s" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestWaveWidth(t *testing.T) {
	t.Parallel()

	if got := WaveWidth(120); got != DefaultWaveWidth {
		t.Fatalf("wide terminal: got %d", got)
	}
	if got := WaveWidth(80); got != 78 {
		t.Fatalf("narrow terminal: got %d", got)
	}
	if got := WaveWidth(5); got != minWaveWidth {
		t.Fatalf("tiny terminal: got %d", got)
	}
}

func TestRecordingLineLayouts(t *testing.T) {
	t.Parallel()

	p := Palette{}
	wave := strings.Repeat("·", 60)

	single := RecordingLine(p, wave, 3, 900, 120)
	if single != ClearLine+wave+" Recording [00:03 / 15:00] Press Enter to stop" {
		t.Fatalf("unexpected single-line layout %q", single)
	}

	double := RecordingLine(p, wave, 3, 900, 80)
	if !strings.Contains(double, wave+"\r\n\033[2K") || !strings.HasSuffix(double, CursorUp+"\r") {
		t.Fatalf("unexpected two-line layout %q", double)
	}
	if strings.Count(double, "\n") != strings.Count(double, "\r\n") {
		t.Fatalf("bare newline in two-line layout %q", double)
	}
}

func TestStartupHeaderPlain(t *testing.T) {
	t.Parallel()

	out := StartupHeader(Palette{}, "groq:openai/gpt-oss-120b", []string{"~/.whspr/WHISPER.md", "./WHISPER.md"}, 200)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "┌─ WHSPR ") || !strings.HasSuffix(lines[0], "┐") {
		t.Fatalf("unexpected top border %q", lines[0])
	}
	if !strings.Contains(lines[2], "Vocab: ~/.whspr/WHISPER.md + ./WHISPER.md") {
		t.Fatalf("unexpected vocab line %q", lines[2])
	}
	for _, line := range lines {
		if n := len([]rune(line)); n != maxHeaderWidth {
			t.Fatalf("expected width %d, got %d for %q", maxHeaderWidth, n, line)
		}
	}

	noVocab := StartupHeader(Palette{}, "m", nil, 40)
	if strings.Contains(noVocab, "Vocab") {
		t.Fatalf("vocab line should be omitted")
	}
}

func TestCompactStatsAndStatus(t *testing.T) {
	t.Parallel()

	if got := CompactStats(Palette{}, "00:12", "1.2s", "$0.0042"); got != "Audio: 00:12 • Processing: 1.2s • Cost: $0.0042" {
		t.Fatalf("unexpected stats %q", got)
	}
	if got := CompactStats(Palette{}, "00:12", "1.2s", ""); got != "Audio: 00:12 • Processing: 1.2s" {
		t.Fatalf("unexpected stats without cost %q", got)
	}
	if got := Status(Palette{}, "Transcribing..."); got != "├─ Transcribing..." {
		t.Fatalf("unexpected status %q", got)
	}
	if got := (Palette{Enabled: true}).Error("x"); got != ColorRed+"x"+ColorReset {
		t.Fatalf("unexpected coloured text %q", got)
	}
}
