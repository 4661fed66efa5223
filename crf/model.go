package crf

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// WriteWeights writes one "template a b weight" line per feature, in index order.
func WriteWeights(w io.Writer, weights *Weights) error {
	bw := bufio.NewWriter(w)
	for i, id := range weights.IDs() {
		if _, err := fmt.Fprintf(bw, "%s %d %d %s\n", id.Template, id.A, id.B,
			strconv.FormatFloat(weights.Get(i), 'g', -1, 64)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteHumaneWeights writes "template(a,b)<TAB>weight" lines, largest
// magnitude first, skipping zero weights.
func WriteHumaneWeights(w io.Writer, weights *Weights) error {
	order := make([]int, 0, weights.Size())
	for i := range weights.Size() {
		if weights.Get(i) != 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(weights.Get(order[a])) > math.Abs(weights.Get(order[b]))
	})
	bw := bufio.NewWriter(w)
	for _, i := range order {
		if _, err := fmt.Fprintf(bw, "%s\t%g\n", weights.ID(i), weights.Get(i)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadWeights parses the format written by WriteWeights.
func ReadWeights(r io.Reader) (*Weights, error) {
	weights := NewWeights()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 4 {
			return nil, fmt.Errorf("crf: weights line %d: want 4 fields, got %d", line, len(fields))
		}
		a, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("crf: weights line %d: %w", line, err)
		}
		b, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("crf: weights line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("crf: weights line %d: %w", line, err)
		}
		weights.Set(weights.Add(FeatureID{Template: fields[0], A: a, B: b}), v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return weights, nil
}

// SaveWeights writes the weights to path, in humane form when requested.
func SaveWeights(weights *Weights, path string, humane bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	write := WriteWeights
	if humane {
		write = WriteHumaneWeights
	}
	if err := write(f, weights); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// LoadWeights reads weights saved by SaveWeights in compact form.
func LoadWeights(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadWeights(f)
}
