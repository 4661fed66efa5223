package latentcrf

import (
	"fmt"
	"sort"
	"strings"
)

// EvalResult holds the agreement between predicted and reference labelings.
type EvalResult struct {
	TokenAccuracy    float64
	SequenceAccuracy float64
	TokenCorrect     int
	TokenTotal       int
	SequenceCorrect  int
	SequenceTotal    int
	// Confusion counts reference tag -> predicted tag.
	Confusion map[string]map[string]int
	Classes   []string
}

// AlignmentResult holds link precision and recall against reference links.
type AlignmentResult struct {
	Precision float64
	Recall    float64
	F1        float64
	// AER is the alignment error rate with every reference link sure.
	AER       float64
	Matched   int
	Predicted int
	Reference int
}

// EvaluateTagging compares predicted tag lines with reference tag lines.
// Lines are paired by index; reference lines that are empty are skipped.
func EvaluateTagging(predicted, reference []string) (*EvalResult, error) {
	if len(predicted) != len(reference) {
		return nil, fmt.Errorf("latentcrf: %d predicted lines for %d reference lines", len(predicted), len(reference))
	}
	result := &EvalResult{Confusion: make(map[string]map[string]int)}
	classes := make(map[string]bool)
	for i := range reference {
		want := strings.Fields(reference[i])
		if len(want) == 0 {
			continue
		}
		got := strings.Fields(predicted[i])
		if len(got) != len(want) {
			return nil, fmt.Errorf("latentcrf: line %d has %d predicted and %d reference tags", i+1, len(got), len(want))
		}
		allCorrect := true
		for j := range want {
			row, ok := result.Confusion[want[j]]
			if !ok {
				row = make(map[string]int)
				result.Confusion[want[j]] = row
			}
			row[got[j]]++
			classes[want[j]] = true
			classes[got[j]] = true
			if got[j] == want[j] {
				result.TokenCorrect++
			} else {
				allCorrect = false
			}
			result.TokenTotal++
		}
		if allCorrect {
			result.SequenceCorrect++
		}
		result.SequenceTotal++
	}
	for c := range classes {
		result.Classes = append(result.Classes, c)
	}
	sort.Strings(result.Classes)
	if result.TokenTotal > 0 {
		result.TokenAccuracy = float64(result.TokenCorrect) / float64(result.TokenTotal)
	}
	if result.SequenceTotal > 0 {
		result.SequenceAccuracy = float64(result.SequenceCorrect) / float64(result.SequenceTotal)
	}
	return result, nil
}

// EvaluateAlignment compares "src-tgt" link lines with reference link lines.
func EvaluateAlignment(predicted, reference []string) (*AlignmentResult, error) {
	if len(predicted) != len(reference) {
		return nil, fmt.Errorf("latentcrf: %d predicted lines for %d reference lines", len(predicted), len(reference))
	}
	result := &AlignmentResult{}
	for i := range reference {
		want := make(map[string]bool)
		for _, link := range strings.Fields(reference[i]) {
			want[link] = true
		}
		got := strings.Fields(predicted[i])
		for _, link := range got {
			if want[link] {
				result.Matched++
			}
		}
		result.Predicted += len(got)
		result.Reference += len(want)
	}
	if result.Predicted > 0 {
		result.Precision = float64(result.Matched) / float64(result.Predicted)
	}
	if result.Reference > 0 {
		result.Recall = float64(result.Matched) / float64(result.Reference)
	}
	if result.Precision+result.Recall > 0 {
		result.F1 = 2 * result.Precision * result.Recall / (result.Precision + result.Recall)
	}
	if total := result.Predicted + result.Reference; total > 0 {
		result.AER = 1 - 2*float64(result.Matched)/float64(total)
	}
	return result, nil
}
