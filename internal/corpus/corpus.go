// Package corpus reads integer-encoded training corpora and writes labelings.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/happyhackingspace/latentcrf/crf"
)

// PairSeparator splits the source and target sides of a parallel line.
const PairSeparator = "|||"

// Pair is one parallel sentence.
type Pair struct {
	Source []int64
	Target []int64
}

// Storage wraps the corpus files.
type Storage struct {
	Path     string
	GoldPath string
}

// NewStorage creates a Storage for the given corpus and optional gold labels.
func NewStorage(path, goldPath string) *Storage {
	return &Storage{Path: path, GoldPath: goldPath}
}

// ReadOptions controls corpus reading.
type ReadOptions struct {
	MaxSentences int // 0 reads everything
	KeepEmpty    bool
}

// DefaultReadOptions returns the default options for reading a corpus.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{}
}

// ParseIDs parses whitespace-separated integer token ids.
func ParseIDs(line string) ([]int64, error) {
	fields := strings.Fields(line)
	ids := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, err
		}
		ids[i] = v
	}
	return ids, nil
}

// ParsePair parses "source ids ||| target ids".
func ParsePair(line string) (Pair, error) {
	src, tgt, ok := strings.Cut(line, PairSeparator)
	if !ok {
		return Pair{}, fmt.Errorf("missing %q", PairSeparator)
	}
	s, err := ParseIDs(src)
	if err != nil {
		return Pair{}, fmt.Errorf("source: %w", err)
	}
	t, err := ParseIDs(tgt)
	if err != nil {
		return Pair{}, fmt.Errorf("target: %w", err)
	}
	return Pair{Source: s, Target: t}, nil
}

// eachLine calls fn with every line of path, numbered from 1.
func eachLine(path string, fn func(n int, line string) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return scanLines(f, fn)
}

func scanLines(r io.Reader, fn func(n int, line string) (bool, error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		more, err := fn(n, sc.Text())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return sc.Err()
}

// ReadTagging reads one sentence of token ids per line. Malformed lines are
// logged and skipped.
func (s *Storage) ReadTagging(opts ReadOptions) ([][]int64, error) {
	var sents [][]int64
	err := eachLine(s.Path, func(n int, line string) (bool, error) {
		ids, err := ParseIDs(line)
		if err != nil {
			slog.Warn("Cannot parse corpus line", "path", s.Path, "line", n, "error", err)
			return true, nil
		}
		if len(ids) == 0 && !opts.KeepEmpty {
			return true, nil
		}
		sents = append(sents, ids)
		return opts.MaxSentences == 0 || len(sents) < opts.MaxSentences, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return sents, nil
}

// ReadParallel reads "source ||| target" lines.
func (s *Storage) ReadParallel(opts ReadOptions) ([]Pair, error) {
	var pairs []Pair
	err := eachLine(s.Path, func(n int, line string) (bool, error) {
		p, err := ParsePair(line)
		if err != nil {
			slog.Warn("Cannot parse parallel line", "path", s.Path, "line", n, "error", err)
			return true, nil
		}
		if (len(p.Source) == 0 || len(p.Target) == 0) && !opts.KeepEmpty {
			return true, nil
		}
		pairs = append(pairs, p)
		return opts.MaxSentences == 0 || len(pairs) < opts.MaxSentences, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read parallel corpus: %w", err)
	}
	return pairs, nil
}

// ReadGoldLabels reads whitespace-separated tag strings, one sentence per
// line, registering each tag in labels. It returns nil when no gold file is
// configured.
func (s *Storage) ReadGoldLabels(labels *crf.Alphabet, opts ReadOptions) ([][]int, error) {
	if s.GoldPath == "" {
		return nil, nil
	}
	var gold [][]int
	err := eachLine(s.GoldPath, func(n int, line string) (bool, error) {
		fields := strings.Fields(line)
		if len(fields) == 0 && !opts.KeepEmpty {
			return true, nil
		}
		ids := make([]int, len(fields))
		for i, tag := range fields {
			ids[i] = labels.Add(tag)
		}
		gold = append(gold, ids)
		return opts.MaxSentences == 0 || len(gold) < opts.MaxSentences, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read gold labels: %w", err)
	}
	return gold, nil
}

// WriteLines writes one line per entry to path.
func WriteLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
