package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/happyhackingspace/latentcrf"
	"github.com/happyhackingspace/latentcrf/latent"
	"github.com/spf13/cobra"
)

func (c *CLI) newLabelCommand() *cobra.Command {
	flags := newTrainFlags()
	var task string
	var labels int
	var nullToken int64
	var nullAlignments, reverse bool

	cmd := &cobra.Command{
		Use:   "label <corpus>",
		Short: "Label a corpus with saved weights and emissions",
		Args:  cobra.ExactArgs(1),
		Example: `  latentcrf label test.ids --task tag --labels 12 --init-lambda pos.final.lambda --init-theta pos.final.theta
  latentcrf label fr-en.ids --task align --null-alignments --init-lambda fr-en.final.lambda --init-theta fr-en.final.theta`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			var t latent.Task
			var err error
			switch task {
			case "tag":
				t, err = latentcrf.LoadTagging(latentcrf.TaggingConfig{
					Corpus:       args[0],
					Labels:       labels,
					Templates:    flags.templates,
					MaxSentences: flags.maxSentences,
				})
			case "align":
				t, err = latentcrf.LoadAlignment(latentcrf.AlignmentConfig{
					Corpus:         args[0],
					NullToken:      nullToken,
					NullAlignments: nullAlignments,
					Reverse:        reverse,
					Templates:      flags.templates,
					MaxSentences:   flags.maxSentences,
				})
			default:
				return fmt.Errorf("unknown task %q, want tag or align", task)
			}
			if err != nil {
				return err
			}

			config := flags.resolve()
			slog.Info("Labeling", "corpus", args[0], "task", task, "output-prefix", config.OutputPrefix)
			start := time.Now()
			res, err := latentcrf.Label(ctx, t, config, flags.checkpoint)
			if err != nil {
				return err
			}
			slog.Info("Labeling completed", "sentences", len(res.Labels), "duration", time.Since(start))
			return nil
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().StringVar(&task, "task", "align", "Task of the saved model: tag or align")
	cmd.Flags().IntVar(&labels, "labels", 2, "Number of tags")
	cmd.Flags().Int64Var(&nullToken, "null-token", 0, "Token id of the NULL source word")
	cmd.Flags().BoolVar(&nullAlignments, "null-alignments", false, "Allow alignments to the NULL source word")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Swap source and target")
	return cmd
}
