package cli

import (
	"fmt"
	"io"
	"os"

	"whspr/internal/terminal"
	"whspr/internal/ui"
)

type formatter struct {
	w io.Writer
	p ui.Palette
}

func newFormatter(w io.Writer) *formatter {
	f, ok := w.(*os.File)
	return &formatter{w: w, p: ui.Palette{Enabled: ok && terminal.ColorEnabled(f)}}
}

func (f *formatter) check(name string, ok bool, detail string) {
	mark := f.p.Success("✓")
	if !ok {
		mark = f.p.Error("✗")
	}
	fmt.Fprintf(f.w, "  %s %s: %s\n", mark, name, f.p.Metadata(detail))
}

func (f *formatter) success(msg string) {
	fmt.Fprintln(f.w, f.p.Success(msg))
}

func (f *formatter) warning(msg string) {
	fmt.Fprintln(f.w, f.p.Warn(msg))
}

func (f *formatter) info(msg string) {
	fmt.Fprintln(f.w, f.p.Metadata(msg))
}
