package latent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/happyhackingspace/latentcrf/crf"
)

// Task adapts a corpus to the latent CRF: what each position is labeled
// with, what it emits, and which emission context a label selects.
type Task interface {
	// Len returns the number of examples.
	Len() int
	// Observation returns the sequence of positions to label.
	Observation(sentID int) []int64
	// ReconstructedSequenceOf returns the observations emitted at each
	// position, one per position of Observation.
	ReconstructedSequenceOf(sentID int) []int64
	// LabelDomain returns the labels available to every position of sentID.
	LabelDomain(sentID int) []int
	// ContextOf returns the emission context selected by label in sentID.
	ContextOf(sentID, label int) (int64, error)
	// GoldLabels returns the reference labeling, or nil for latent examples.
	GoldLabels(sentID int) []int
	// Features fires the features of one labeling decision.
	Features(label, prevLabel, sentID, pos int) []crf.Feature
	// FormatLabels renders a labeling for output.
	FormatLabels(sentID int, labels []int) string
}

// Tagging labels every token of a sentence with one of a fixed set of tags
// and reconstructs the token itself from its tag.
type Tagging struct {
	Sentences [][]int64
	Gold      [][]int
	NumLabels int
	// Names renders labels as strings when set.
	Names     *crf.Alphabet
	templates []TaggingTemplate
	domain    []int
}

// NewTagging creates a tagging task over numLabels tags.
func NewTagging(sents [][]int64, gold [][]int, numLabels int, names *crf.Alphabet, templates []TaggingTemplate) (*Tagging, error) {
	if numLabels < 1 {
		return nil, fmt.Errorf("latent: tagging needs at least one label, got %d", numLabels)
	}
	if len(gold) > len(sents) {
		return nil, fmt.Errorf("latent: %d gold sequences for %d sentences", len(gold), len(sents))
	}
	for i, g := range gold {
		if g != nil && len(g) != len(sents[i]) {
			return nil, fmt.Errorf("latent: sentence %d has %d tokens but %d gold labels", i, len(sents[i]), len(g))
		}
		for _, y := range g {
			if y < 0 || y >= numLabels {
				return nil, fmt.Errorf("latent: sentence %d gold label %d outside [0,%d)", i, y, numLabels)
			}
		}
	}
	if len(templates) == 0 {
		templates = DefaultTaggingTemplates()
	}
	t := &Tagging{
		Sentences: sents,
		Gold:      gold,
		NumLabels: numLabels,
		Names:     names,
		templates: templates,
		domain:    make([]int, numLabels),
	}
	for i := range t.domain {
		t.domain[i] = i
	}
	return t, nil
}

func (t *Tagging) Len() int                                   { return len(t.Sentences) }
func (t *Tagging) Observation(sentID int) []int64             { return t.Sentences[sentID] }
func (t *Tagging) ReconstructedSequenceOf(sentID int) []int64 { return t.Sentences[sentID] }
func (t *Tagging) LabelDomain(int) []int                      { return t.domain }

func (t *Tagging) ContextOf(sentID, label int) (int64, error) {
	if label < 0 || label >= t.NumLabels {
		return 0, fmt.Errorf("latent: sentence %d: label %d outside [0,%d)", sentID, label, t.NumLabels)
	}
	return int64(label), nil
}

func (t *Tagging) GoldLabels(sentID int) []int {
	if sentID < len(t.Gold) {
		return t.Gold[sentID]
	}
	return nil
}

func (t *Tagging) Features(label, prevLabel, sentID, pos int) []crf.Feature {
	x := t.Sentences[sentID]
	feats := make([]crf.Feature, 0, len(t.templates))
	for _, tmpl := range t.templates {
		if f, ok := tmpl.fire(x, label, prevLabel, pos); ok {
			feats = append(feats, f)
		}
	}
	return feats
}

func (t *Tagging) FormatLabels(_ int, labels []int) string {
	parts := make([]string, len(labels))
	for i, y := range labels {
		if t.Names != nil && y < t.Names.Size() {
			parts[i] = t.Names.ToStr[y]
		} else {
			parts[i] = strconv.Itoa(y)
		}
	}
	return strings.Join(parts, " ")
}

// Pair is one parallel sentence.
type Pair struct {
	Source []int64
	Target []int64
}

// Alignment labels every target token with the source position it aligns
// to and reconstructs the target token from the aligned source token.
// Label 0 is the NULL source word; label j >= 1 is source position j-1.
type Alignment struct {
	Pairs          []Pair
	NullToken      int64
	NullAlignments bool
	templates      []AlignmentTemplate
}

// NewAlignment creates an alignment task. Reverse swaps source and target.
func NewAlignment(pairs []Pair, nullToken int64, nullAlignments, reverse bool, templates []AlignmentTemplate) *Alignment {
	if reverse {
		swapped := make([]Pair, len(pairs))
		for i, p := range pairs {
			swapped[i] = Pair{Source: p.Target, Target: p.Source}
		}
		pairs = swapped
	}
	if len(templates) == 0 {
		templates = DefaultAlignmentTemplates()
	}
	return &Alignment{
		Pairs:          pairs,
		NullToken:      nullToken,
		NullAlignments: nullAlignments,
		templates:      templates,
	}
}

func (a *Alignment) Len() int                                   { return len(a.Pairs) }
func (a *Alignment) Observation(sentID int) []int64             { return a.Pairs[sentID].Target }
func (a *Alignment) ReconstructedSequenceOf(sentID int) []int64 { return a.Pairs[sentID].Target }
func (a *Alignment) GoldLabels(int) []int                       { return nil }

func (a *Alignment) LabelDomain(sentID int) []int {
	n := len(a.Pairs[sentID].Source)
	first := 1
	if a.NullAlignments {
		first = 0
	}
	domain := make([]int, 0, n+1-first)
	for j := first; j <= n; j++ {
		domain = append(domain, j)
	}
	return domain
}

func (a *Alignment) ContextOf(sentID, label int) (int64, error) {
	src := a.Pairs[sentID].Source
	switch {
	case label == 0:
		return a.NullToken, nil
	case label >= 1 && label <= len(src):
		return src[label-1], nil
	}
	return 0, fmt.Errorf("latent: sentence %d: alignment label %d outside [0,%d]", sentID, label, len(src))
}

func (a *Alignment) Features(label, prevLabel, sentID, pos int) []crf.Feature {
	p := &a.Pairs[sentID]
	feats := make([]crf.Feature, 0, len(a.templates))
	for _, tmpl := range a.templates {
		if f, ok := tmpl.fire(p, a.NullToken, label, prevLabel, pos); ok {
			feats = append(feats, f)
		}
	}
	return feats
}

// FormatLabels renders "source-target" position pairs, omitting NULL links.
func (a *Alignment) FormatLabels(_ int, labels []int) string {
	var parts []string
	for i, j := range labels {
		if j > 0 {
			parts = append(parts, fmt.Sprintf("%d-%d", j-1, i))
		}
	}
	return strings.Join(parts, " ")
}
