package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/happyhackingspace/latentcrf"
	"github.com/happyhackingspace/latentcrf/latent"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a latent CRF",
	}
	cmd.AddCommand(c.newTrainTagCommand())
	cmd.AddCommand(c.newTrainAlignCommand())
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM. Training notices at the
// next iteration boundary and writes its interrupted checkpoints.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func report(res *latentcrf.Result, err error, start time.Time) error {
	if errors.Is(err, latent.ErrInterrupted) {
		slog.Warn("Training interrupted, checkpoints written", "duration", time.Since(start))
		return err
	}
	if err != nil {
		return err
	}
	last := 0.0
	if n := len(res.History); n > 0 {
		last = res.History[n-1]
	}
	slog.Info("Training completed", "iterations", res.Iterations, "converged", res.Converged,
		"objective", last, "duration", time.Since(start))
	return nil
}

func (c *CLI) newTrainTagCommand() *cobra.Command {
	flags := newTrainFlags()
	var gold string
	var labels int

	cmd := &cobra.Command{
		Use:   "tag <corpus>",
		Short: "Train a tagger on integer token ids, optionally with gold tags",
		Args:  cobra.ExactArgs(1),
		Example: `  latentcrf train tag train.ids --labels 12 --output-prefix pos
  latentcrf train tag train.ids --gold train.tags --optimizer lbfgs --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			config := latentcrf.TaggingConfig{
				Corpus:       args[0],
				Gold:         gold,
				Labels:       labels,
				Templates:    flags.templates,
				MaxSentences: flags.maxSentences,
				Checkpoint:   flags.checkpoint,
				Config:       flags.resolve(),
			}
			slog.Info("Training tagger", "corpus", config.Corpus, "gold", gold,
				"optimizer", config.Config.WeightOptimizer, "workers", config.Config.Workers)
			start := time.Now()
			res, err := latentcrf.TrainTagging(ctx, config)
			return report(res, err, start)
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().StringVar(&gold, "gold", "", "Gold tag file, one line per sentence")
	cmd.Flags().IntVar(&labels, "labels", 2, "Number of tags when no gold file names them")
	return cmd
}

func (c *CLI) newTrainAlignCommand() *cobra.Command {
	flags := newTrainFlags()
	var nullToken int64
	var nullAlignments, reverse bool

	cmd := &cobra.Command{
		Use:   "align <corpus>",
		Short: `Train a word aligner on "source ||| target" lines`,
		Args:  cobra.ExactArgs(1),
		Example: `  latentcrf train align fr-en.ids --null-alignments --output-prefix fr-en
  latentcrf train align fr-en.ids --optimizer lbfgs --regularizer l2 --regularizer-strength 0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			config := latentcrf.AlignmentConfig{
				Corpus:         args[0],
				NullToken:      nullToken,
				NullAlignments: nullAlignments,
				Reverse:        reverse,
				Templates:      flags.templates,
				MaxSentences:   flags.maxSentences,
				Checkpoint:     flags.checkpoint,
				Config:         flags.resolve(),
			}
			slog.Info("Training aligner", "corpus", config.Corpus,
				"optimizer", config.Config.WeightOptimizer, "workers", config.Config.Workers)
			start := time.Now()
			res, err := latentcrf.TrainAlignment(ctx, config)
			return report(res, err, start)
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().Int64Var(&nullToken, "null-token", 0, "Token id of the NULL source word")
	cmd.Flags().BoolVar(&nullAlignments, "null-alignments", false, "Allow alignments to the NULL source word")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "Swap source and target")
	return cmd
}
