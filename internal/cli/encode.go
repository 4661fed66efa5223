package cli

import (
	"log/slog"

	"github.com/happyhackingspace/latentcrf/internal/corpus"
	"github.com/happyhackingspace/latentcrf/internal/vocab"
	"github.com/spf13/cobra"
)

func (c *CLI) newEncodeCommand() *cobra.Command {
	var vocabPath string
	var minCount int
	var lowercase, parallel bool

	cmd := &cobra.Command{
		Use:   "encode <text> <ids>",
		Short: "Convert a text corpus into integer token ids",
		Args:  cobra.ExactArgs(2),
		Example: `  latentcrf encode train.txt train.ids --vocab vocab.json
  latentcrf encode fr-en.txt fr-en.ids --parallel --min-count 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(args[0])
			if err != nil {
				return err
			}

			var v *vocab.Vocabulary
			if vocabPath != "" {
				if v, err = vocab.Load(vocabPath); err != nil {
					slog.Debug("Building a new vocabulary", "path", vocabPath, "error", err)
					v = nil
				}
			}
			if v == nil {
				v = vocab.New(minCount, lowercase)
				v.Fit(lines)
				if vocabPath != "" {
					if err := v.Save(vocabPath); err != nil {
						return err
					}
				}
			}

			sep := ""
			if parallel {
				sep = corpus.PairSeparator
			}
			out := make([]string, len(lines))
			for i, line := range lines {
				out[i] = v.EncodeLine(line, sep)
			}
			if err := corpus.WriteLines(args[1], out); err != nil {
				return err
			}
			slog.Info("Encoded corpus", "lines", len(out), "vocabulary", v.Size(), "output", args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&vocabPath, "vocab", "", "Vocabulary file to reuse, or to write when missing")
	cmd.Flags().IntVar(&minCount, "min-count", 1, "Minimum word count to enter the vocabulary")
	cmd.Flags().BoolVar(&lowercase, "lowercase", true, "Lowercase text before tokenizing")
	cmd.Flags().BoolVar(&parallel, "parallel", false, `Input holds "source ||| target" lines`)
	return cmd
}
