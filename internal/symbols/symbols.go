// Package symbols loads the list of tracked tickers.
package symbols

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// TickerColumn is the CSV header holding the symbols.
const TickerColumn = "Ticker"

var ErrNoSymbols = errors.New("no symbols configured")

type yamlFile struct {
	Symbols []string `yaml:"symbols"`
}

// Load returns override when it is non-empty, otherwise the symbols in path.
// Files ending in .yaml or .yml are read as YAML, anything else as CSV.
func Load(path string, override []string) ([]string, error) {
	if list := normalize(override); len(list) > 0 {
		return list, nil
	}
	if path == "" {
		return nil, ErrNoSymbols
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol list: %w", err)
	}
	defer f.Close()

	var list []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		list, err = ReadYAML(f)
	default:
		list, err = ReadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSymbols)
	}
	return list, nil
}

// ReadCSV reads the Ticker column of a CSV with a header row.
func ReadCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), TickerColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("missing %q column", TickerColumn)
	}

	var raw []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if col < len(row) {
			raw = append(raw, row[col])
		}
	}
	return normalize(raw), nil
}

// ReadYAML reads a document of the form `symbols: [AAPL, MSFT]`.
func ReadYAML(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return normalize(doc.Symbols), nil
}

// normalize upper-cases, trims and de-duplicates while keeping the first occurrence order.
func normalize(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
