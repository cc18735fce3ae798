package classify

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Labels maps output indices to class names.
type Labels []string

// LoadLabels reads one label per line. Blank lines keep their index.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()
	var out Labels
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return out, nil
}

// Name returns the label for index i, or "#<i>" when none is known.
func (l Labels) Name(i int) string {
	if i >= 0 && i < len(l) && l[i] != "" {
		return l[i]
	}
	return fmt.Sprintf("#%d", i)
}
