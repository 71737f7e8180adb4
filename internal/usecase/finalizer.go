package usecase

import (
	"context"
	"log/slog"

	"whspr/internal/domain"
	"whspr/internal/ports"
)

// textFinalizer hands the final text to the sink, falling back to the clipboard.
// Neither failure is fatal; the caller always prints the text as a last resort.
type textFinalizer struct {
	sink      ports.Sink
	clipboard ports.Clipboard
	events    ports.EventSink
	log       *slog.Logger
}

func newTextFinalizer(sink ports.Sink, clipboard ports.Clipboard, events ports.EventSink, log *slog.Logger) textFinalizer {
	return textFinalizer{sink: sink, clipboard: clipboard, events: events, log: log}
}

func (f textFinalizer) Deliver(ctx context.Context, text string) domain.DeliveryTarget {
	if f.sink != nil {
		err := f.sink.Send(ctx, text)
		if err == nil {
			return domain.DeliveredToSink
		}
		f.log.Warn("sink failed, falling back to clipboard", slog.String("error", err.Error()))
		f.events.SessionError(domain.ErrorCodeSink, err.Error())
	}

	if f.clipboard == nil {
		return domain.DeliveredToStdout
	}
	if err := f.clipboard.SetText(ctx, text); err != nil {
		f.log.Warn("clipboard write failed", slog.String("error", err.Error()))
		f.events.SessionError(domain.ErrorCodeClipboard, "text ready but clipboard write failed")
		return domain.DeliveredToStdout
	}
	return domain.DeliveredToClipboard
}
