package latent

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/happyhackingspace/latentcrf/crf"
)

// TaggingTemplate names a feature template of the tagging task.
type TaggingTemplate string

const (
	LabelBigram   TaggingTemplate = "label-bigram"
	LabelWord     TaggingTemplate = "label-word"
	LabelPrevWord TaggingTemplate = "label-prev-word"
	LabelNextWord TaggingTemplate = "label-next-word"
	LabelBias     TaggingTemplate = "label-bias"
)

// DefaultTaggingTemplates returns the templates used when none are configured.
func DefaultTaggingTemplates() []TaggingTemplate {
	return []TaggingTemplate{LabelBigram, LabelWord, LabelBias}
}

// boundary stands in for the word before the first or after the last token.
const boundary = -1

func (tmpl TaggingTemplate) fire(x []int64, label, prev, pos int) (crf.Feature, bool) {
	id := crf.FeatureID{Template: string(tmpl), A: int64(label)}
	switch tmpl {
	case LabelBigram:
		id.A, id.B = int64(prev), int64(label)
	case LabelWord:
		id.B = x[pos]
	case LabelPrevWord:
		id.B = boundary
		if pos > 0 {
			id.B = x[pos-1]
		}
	case LabelNextWord:
		id.B = boundary
		if pos+1 < len(x) {
			id.B = x[pos+1]
		}
	case LabelBias:
	default:
		return crf.Feature{}, false
	}
	return crf.Feature{ID: id, Value: 1}, true
}

// AlignmentTemplate names a feature template of the alignment task.
type AlignmentTemplate string

const (
	SrcTgt       AlignmentTemplate = "src-tgt"
	Jump         AlignmentTemplate = "jump"
	LogJump      AlignmentTemplate = "log-jump"
	JumpIsZero   AlignmentTemplate = "jump-is-zero"
	Diagonal     AlignmentTemplate = "diagonal"
	SrcWordBias  AlignmentTemplate = "src-word-bias"
	NullAlign    AlignmentTemplate = "null"
	SyncStart    AlignmentTemplate = "sync-start"
	SyncEnd      AlignmentTemplate = "sync-end"
	NullLenRatio AlignmentTemplate = "null-length-ratio"
)

// DefaultAlignmentTemplates returns the templates used when none are configured.
func DefaultAlignmentTemplates() []AlignmentTemplate {
	return []AlignmentTemplate{SrcTgt, Diagonal}
}

func (tmpl AlignmentTemplate) fire(p *Pair, null int64, label, prev, pos int) (crf.Feature, bool) {
	id := crf.FeatureID{Template: string(tmpl)}
	value := 1.0
	aligned := label > 0
	srcLen, tgtLen := len(p.Source), len(p.Target)
	hasPrev := prev > 0

	switch tmpl {
	case SrcTgt:
		id.A, id.B = null, p.Target[pos]
		if aligned {
			id.A = p.Source[label-1]
		}
	case Jump:
		if !aligned || !hasPrev {
			return crf.Feature{}, false
		}
		id.A = int64(label - prev)
	case LogJump:
		if !aligned || !hasPrev {
			return crf.Feature{}, false
		}
		value = math.Log1p(math.Abs(float64(label - prev)))
	case JumpIsZero:
		if !aligned || label != prev {
			return crf.Feature{}, false
		}
	case Diagonal:
		if !aligned {
			return crf.Feature{}, false
		}
		value = math.Abs(float64(label-1)/float64(srcLen) - float64(pos)/float64(tgtLen))
	case SrcWordBias:
		if !aligned {
			return crf.Feature{}, false
		}
		id.A = p.Source[label-1]
	case NullAlign:
		if aligned {
			return crf.Feature{}, false
		}
		id.A = p.Target[pos]
	case SyncStart:
		if pos != 0 || label != 1 {
			return crf.Feature{}, false
		}
	case SyncEnd:
		if pos != tgtLen-1 || label != srcLen {
			return crf.Feature{}, false
		}
	case NullLenRatio:
		if aligned {
			return crf.Feature{}, false
		}
		value = float64(tgtLen) / float64(max(srcLen, 1))
	default:
		return crf.Feature{}, false
	}
	if value == 0 {
		return crf.Feature{}, false
	}
	return crf.Feature{ID: id, Value: value}, true
}

var (
	taggingTemplates   = []TaggingTemplate{LabelBigram, LabelWord, LabelPrevWord, LabelNextWord, LabelBias}
	alignmentTemplates = []AlignmentTemplate{SrcTgt, Jump, LogJump, JumpIsZero, Diagonal, SrcWordBias, NullAlign, SyncStart, SyncEnd, NullLenRatio}
)

// ParseTaggingTemplates parses template names, rejecting unknown ones.
func ParseTaggingTemplates(names []string) ([]TaggingTemplate, error) {
	return parseTemplates(names, taggingTemplates)
}

// ParseAlignmentTemplates parses template names, rejecting unknown ones.
func ParseAlignmentTemplates(names []string) ([]AlignmentTemplate, error) {
	return parseTemplates(names, alignmentTemplates)
}

func parseTemplates[T ~string](names []string, known []T) ([]T, error) {
	var out []T
	for _, n := range names {
		found := false
		for _, k := range known {
			if string(k) == n {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			valid := make([]string, len(known))
			for i, k := range known {
				valid[i] = string(k)
			}
			sort.Strings(valid)
			return nil, fmt.Errorf("latent: unknown feature template %q (valid: %s)", n, strings.Join(valid, ", "))
		}
	}
	return out, nil
}
