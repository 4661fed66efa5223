package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/happyhackingspace/latentcrf"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "evaluate <predicted> <reference>",
		Short: "Compare written labels with reference labels",
		Args:  cobra.ExactArgs(2),
		Example: `  latentcrf evaluate pos.labels test.tags --task tag
  latentcrf evaluate fr-en.labels fr-en.gold --task align`,
		RunE: func(cmd *cobra.Command, args []string) error {
			predicted, err := readLines(args[0])
			if err != nil {
				return err
			}
			reference, err := readLines(args[1])
			if err != nil {
				return err
			}
			slog.Debug("Evaluating", "task", task, "predicted", len(predicted), "reference", len(reference))

			switch task {
			case "tag":
				result, err := latentcrf.EvaluateTagging(predicted, reference)
				if err != nil {
					return err
				}
				fmt.Printf("Token accuracy: %.1f%% (%d/%d tokens)\n",
					result.TokenAccuracy*100, result.TokenCorrect, result.TokenTotal)
				fmt.Printf("Sequence accuracy: %.1f%% (%d/%d sentences)\n",
					result.SequenceAccuracy*100, result.SequenceCorrect, result.SequenceTotal)
				printConfusionMatrix(result.Confusion, result.Classes)
			case "align":
				result, err := latentcrf.EvaluateAlignment(predicted, reference)
				if err != nil {
					return err
				}
				fmt.Printf("Precision: %.1f%% (%d/%d links)\n", result.Precision*100, result.Matched, result.Predicted)
				fmt.Printf("Recall: %.1f%% (%d/%d links)\n", result.Recall*100, result.Matched, result.Reference)
				fmt.Printf("F1: %.1f%%  AER: %.1f%%\n", result.F1*100, result.AER*100)
			default:
				return fmt.Errorf("unknown task %q, want tag or align", task)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "tag", "Label format: tag or align")
	return cmd
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func printConfusionMatrix(confusion map[string]map[string]int, classes []string) {
	if len(confusion) == 0 {
		return
	}

	sort.Slice(classes, func(i, j int) bool {
		ti, tj := 0, 0
		for _, v := range confusion[classes[i]] {
			ti += v
		}
		for _, v := range confusion[classes[j]] {
			tj += v
		}
		return ti > tj
	})

	fmt.Printf("\nConfusion matrix (rows=reference, cols=predicted):\n")
	fmt.Printf("%8s", "")
	for _, c := range classes {
		fmt.Printf(" %5s", c)
	}
	fmt.Printf("  total  acc%%\n")

	for _, want := range classes {
		fmt.Printf("%8s", want)
		total := 0
		correct := 0
		for _, got := range classes {
			count := confusion[want][got]
			total += count
			if want == got {
				correct = count
			}
			if count == 0 {
				fmt.Printf(" %5s", ".")
			} else {
				fmt.Printf(" %5d", count)
			}
		}
		acc := 0.0
		if total > 0 {
			acc = float64(correct) / float64(total) * 100
		}
		fmt.Printf("  %5d %5.1f\n", total, acc)
	}
}
