package emission

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Write renders the table as "context<TAB>decision nlogp decision nlogp ..." lines.
func (t *Table) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, ctx := range t.Contexts() {
		decisions, values := t.Row(ctx)
		fmt.Fprintf(bw, "%d\t", ctx)
		for i, d := range decisions {
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%d %s", d, strconv.FormatFloat(values[i], 'g', -1, 64))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses the format produced by Write.
func Read(r io.Reader) (*Table, error) {
	t := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		head, rest, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("emission: line %d: missing context separator", line)
		}
		ctx, err := strconv.ParseInt(head, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("emission: line %d: %w", line, err)
		}
		fields := strings.Fields(rest)
		if len(fields)%2 != 0 {
			return nil, fmt.Errorf("emission: line %d: odd number of fields", line)
		}
		for i := 0; i < len(fields); i += 2 {
			d, err := strconv.ParseInt(fields[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("emission: line %d: %w", line, err)
			}
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("emission: line %d: %w", line, err)
			}
			t.Set(ctx, d, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Save writes the table to path.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads a table saved by Save.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
