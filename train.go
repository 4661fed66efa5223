package latentcrf

import (
	"context"
	"fmt"

	"github.com/happyhackingspace/latentcrf/crf"
	"github.com/happyhackingspace/latentcrf/internal/corpus"
	"github.com/happyhackingspace/latentcrf/latent"
)

// TaggingConfig configures a tagging run.
type TaggingConfig struct {
	// Corpus holds one sentence of integer token ids per line.
	Corpus string
	// Gold optionally holds one line of tags per sentence; an empty line
	// leaves its sentence latent.
	Gold string
	// Labels is the number of tags when no gold file names them.
	Labels       int
	Templates    []string
	MaxSentences int
	Checkpoint   Checkpoint
	Config       latent.Config
}

// AlignmentConfig configures an alignment run.
type AlignmentConfig struct {
	// Corpus holds "source ids ||| target ids" lines.
	Corpus    string
	NullToken int64
	// NullAlignments lets target words align to the NULL source word.
	NullAlignments bool
	Reverse        bool
	Templates      []string
	MaxSentences   int
	Checkpoint     Checkpoint
	Config         latent.Config
}

// LoadTagging reads a tagging corpus into a task.
func LoadTagging(config TaggingConfig) (*latent.Tagging, error) {
	store := corpus.NewStorage(config.Corpus, config.Gold)
	opts := corpus.DefaultReadOptions()
	opts.MaxSentences = config.MaxSentences
	opts.KeepEmpty = config.Gold != ""

	sents, err := store.ReadTagging(opts)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	if len(sents) == 0 {
		return nil, fmt.Errorf("latentcrf: no sentences found in %s", config.Corpus)
	}
	names := crf.NewAlphabet()
	gold, err := store.ReadGoldLabels(names, opts)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	for i, g := range gold {
		if len(g) == 0 {
			gold[i] = nil
		}
	}

	numLabels := max(config.Labels, names.Size())
	if names.Size() == 0 {
		names = nil
	}
	templates, err := latent.ParseTaggingTemplates(config.Templates)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	task, err := latent.NewTagging(sents, gold, numLabels, names, templates)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	return task, nil
}

// LoadAlignment reads a parallel corpus into a task.
func LoadAlignment(config AlignmentConfig) (*latent.Alignment, error) {
	store := corpus.NewStorage(config.Corpus, "")
	opts := corpus.DefaultReadOptions()
	opts.MaxSentences = config.MaxSentences

	parsed, err := store.ReadParallel(opts)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("latentcrf: no sentence pairs found in %s", config.Corpus)
	}
	pairs := make([]latent.Pair, len(parsed))
	for i, p := range parsed {
		pairs[i] = latent.Pair{Source: p.Source, Target: p.Target}
	}
	templates, err := latent.ParseAlignmentTemplates(config.Templates)
	if err != nil {
		return nil, fmt.Errorf("latentcrf: %w", err)
	}
	return latent.NewAlignment(pairs, config.NullToken, config.NullAlignments, config.Reverse, templates), nil
}

// TrainTagging trains a tagger on config.Corpus.
func TrainTagging(ctx context.Context, config TaggingConfig) (*Result, error) {
	task, err := LoadTagging(config)
	if err != nil {
		return nil, err
	}
	return run(ctx, task, config.Config, config.Checkpoint)
}

// TrainAlignment trains an aligner on config.Corpus.
func TrainAlignment(ctx context.Context, config AlignmentConfig) (*Result, error) {
	task, err := LoadAlignment(config)
	if err != nil {
		return nil, err
	}
	return run(ctx, task, config.Config, config.Checkpoint)
}
