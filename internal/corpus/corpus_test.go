package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/happyhackingspace/latentcrf/crf"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		line    string
		src     int
		tgt     int
		wantErr bool
	}{
		{"1 2 3 ||| 4 5", 3, 2, false},
		{"7 ||| 8", 1, 1, false},
		{"1 2 3", 0, 0, true},
		{"1 x ||| 2", 0, 0, true},
	}
	for _, tt := range tests {
		p, err := ParsePair(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePair(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if err == nil && (len(p.Source) != tt.src || len(p.Target) != tt.tgt) {
			t.Errorf("ParsePair(%q) = %v", tt.line, p)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadTaggingSkipsBadLines(t *testing.T) {
	path := writeFile(t, "corpus.txt", "1 2 3\n\nfoo bar\n4 5\n")
	sents, err := NewStorage(path, "").ReadTagging(DefaultReadOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(sents) != 2 || len(sents[0]) != 3 || sents[1][1] != 5 {
		t.Errorf("sents = %v", sents)
	}

	sents, err = NewStorage(path, "").ReadTagging(ReadOptions{MaxSentences: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(sents) != 1 {
		t.Errorf("MaxSentences ignored: %v", sents)
	}
}

func TestReadParallelAndGold(t *testing.T) {
	path := writeFile(t, "pairs.txt", "1 2 ||| 3 4 5\n6 ||| 7\n")
	pairs, err := NewStorage(path, "").ReadParallel(DefaultReadOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 || pairs[0].Target[2] != 5 {
		t.Errorf("pairs = %v", pairs)
	}

	gold := writeFile(t, "gold.txt", "DT NN\nNN VB DT\n")
	labels := crf.NewAlphabet()
	got, err := NewStorage(path, gold).ReadGoldLabels(labels, DefaultReadOptions())
	if err != nil {
		t.Fatal(err)
	}
	if labels.Size() != 3 || len(got) != 2 || got[1][2] != labels.Get("DT") {
		t.Errorf("gold = %v, labels = %v", got, labels.ToStr)
	}
}

func TestWriteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.labels")
	if err := WriteLines(path, []string{"0-1 1-0", ""}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "0-1 1-0\n\n" {
		t.Errorf("content = %q", data)
	}
}
