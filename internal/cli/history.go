package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"whspr/internal/domain"
	"whspr/internal/history"
	"whspr/internal/pricing"
	"whspr/internal/ui"
)

const historyPreviewWidth = 60

func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent dictations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(deps.out())

			store, err := history.Open(cmd.Context(), deps.Config.Paths.HistoryFile, deps.Log)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				f.info("No dictations recorded yet")
				return nil
			}

			for _, entry := range entries {
				fmt.Fprintln(f.w, historyLine(f.p, entry))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func historyLine(p ui.Palette, entry domain.HistoryEntry) string {
	when := entry.StartedAt.Local().Format("2006-01-02 15:04")
	head := fmt.Sprintf("%s %s %s", p.Metadata(when), ui.FormatTime(entry.AudioSeconds), p.Metadata(entry.Model))

	if entry.ErrorCode != "" {
		line := head + " " + p.Error(string(entry.ErrorCode))
		if entry.BackupPath != "" {
			line += " " + p.Warn(entry.BackupPath)
		}
		return line
	}
	return head + " " + p.Dim(pricing.Format(entry.CostUSD)) + " " + preview(entry.FinalText)
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= historyPreviewWidth {
		return text
	}
	runes := []rune(text)
	return string(runes[:historyPreviewWidth-1]) + "…"
}
