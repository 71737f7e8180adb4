package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"whspr/internal/config"
)

// DictateOptions are the per-invocation flags of the default command.
type DictateOptions struct {
	PipeCommand string
	Verbose     bool
}

type Dependencies struct {
	Config config.Config
	Log    *slog.Logger
	// Level is raised to Debug when --verbose is given.
	Level   *slog.LevelVar
	Dictate func(ctx context.Context, opts DictateOptions) error
	Out     io.Writer
}

func (d *Dependencies) out() io.Writer {
	if d.Out != nil {
		return d.Out
	}
	return os.Stdout
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var opts DictateOptions

	rootCmd := &cobra.Command{
		Use:   "whspr",
		Short: "Record your voice, transcribe it, and clean it up",
		Long: "Records from the default microphone until Enter is pressed, transcribes the audio, " +
			"fixes it up with a language model, and copies the result to the clipboard.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Verbose = opts.Verbose || deps.Config.Settings.Verbose
			if opts.Verbose && deps.Level != nil {
				deps.Level.Set(slog.LevelDebug)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.Dictate(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show debug logs and the raw transcript")
	rootCmd.Flags().StringVarP(&opts.PipeCommand, "pipe", "p", "", "send the final text to this command's stdin instead of the clipboard")

	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewHistoryCmd(deps))

	return rootCmd
}
