// Package vocab maps words to the integer ids the trainers read.
package vocab

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Reserved ids. Words are numbered from FirstWordID in sorted order.
const (
	NullID      int64 = 0
	UnknownID   int64 = 1
	FirstWordID int64 = 2
)

var tokenizeRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize extracts word tokens from text (Unicode-aware).
func Tokenize(text string) []string {
	return tokenizeRe.FindAllString(text, -1)
}

// Vocabulary assigns ids to words seen at least MinCount times.
type Vocabulary struct {
	Words     map[string]int64 `json:"words"`
	MinCount  int              `json:"min_count"`
	Lowercase bool             `json:"lowercase"`
}

// New creates an empty vocabulary.
func New(minCount int, lowercase bool) *Vocabulary {
	if minCount < 1 {
		minCount = 1
	}
	return &Vocabulary{
		Words:     make(map[string]int64),
		MinCount:  minCount,
		Lowercase: lowercase,
	}
}

func (v *Vocabulary) analyze(text string) []string {
	if v.Lowercase {
		text = strings.ToLower(text)
	}
	return Tokenize(text)
}

// Fit builds the vocabulary from lines of text.
func (v *Vocabulary) Fit(lines []string) {
	counts := make(map[string]int)
	for _, line := range lines {
		for _, w := range v.analyze(line) {
			counts[w]++
		}
	}

	// sorted for a deterministic numbering
	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n >= v.MinCount {
			words = append(words, w)
		}
	}
	sort.Strings(words)
	v.Words = make(map[string]int64, len(words))
	for i, w := range words {
		v.Words[w] = FirstWordID + int64(i)
	}
}

// Encode converts one line of text to ids. Unknown words map to UnknownID.
func (v *Vocabulary) Encode(text string) []int64 {
	words := v.analyze(text)
	ids := make([]int64, len(words))
	for i, w := range words {
		id, ok := v.Words[w]
		if !ok {
			id = UnknownID
		}
		ids[i] = id
	}
	return ids
}

// EncodeLine converts a text line to its id line. Parallel lines keep
// their separator between the two encoded sides.
func (v *Vocabulary) EncodeLine(line, separator string) string {
	if separator != "" {
		if src, tgt, ok := strings.Cut(line, separator); ok {
			return join(v.Encode(src)) + " " + separator + " " + join(v.Encode(tgt))
		}
	}
	return join(v.Encode(line))
}

func join(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " ")
}

// Size returns the number of known words.
func (v *Vocabulary) Size() int {
	return len(v.Words)
}

// Save writes the vocabulary as JSON.
func (v *Vocabulary) Save(path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a vocabulary written by Save.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v := &Vocabulary{}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	return v, nil
}
