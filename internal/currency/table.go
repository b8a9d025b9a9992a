// Package currency holds the static exchange-rate table used to normalize
// receipt amounts into the reference currency.
package currency

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReferenceCode is the currency every reference total is expressed in.
const ReferenceCode = "KRW"

// Entry describes one supported currency.
type Entry struct {
	Rate    float64 `yaml:"rate"`
	Country string  `yaml:"country"`
}

// Table maps a currency code to its rate against ReferenceCode.
// A Table is read-only once built.
type Table struct {
	entries map[string]Entry
}

var defaultEntries = map[string]Entry{
	"KRW": {Rate: 1, Country: "대한민국"},
	"USD": {Rate: 1300, Country: "미국"},
	"EUR": {Rate: 1500, Country: "유럽"},
	"JPY": {Rate: 9, Country: "일본"},
}

// Default returns the built-in table.
func Default() *Table {
	t := &Table{entries: make(map[string]Entry, len(defaultEntries))}
	for code, e := range defaultEntries {
		t.entries[code] = e
	}
	return t
}

// New builds a table from explicit entries. Entries with a non-positive rate are rejected.
func New(entries map[string]Entry) (*Table, error) {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for code, e := range entries {
		code = normalizeCode(code)
		if code == "" {
			return nil, fmt.Errorf("currency.New: empty currency code")
		}
		if e.Rate <= 0 {
			return nil, fmt.Errorf("currency.New: rate for %s must be positive, got %v", code, e.Rate)
		}
		t.entries[code] = e
	}
	return t, nil
}

// LoadYAML reads a YAML file of the form
//
//	USD: {rate: 1300, country: 미국}
//
// and merges it over the default table.
func LoadYAML(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("currency.LoadYAML: reading %q: %w", path, err)
	}

	var overrides map[string]Entry
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("currency.LoadYAML: decoding %q: %w", path, err)
	}

	merged := make(map[string]Entry, len(defaultEntries)+len(overrides))
	for code, e := range defaultEntries {
		merged[code] = e
	}
	for code, e := range overrides {
		code = normalizeCode(code)
		if e.Country == "" {
			e.Country = merged[code].Country
		}
		merged[code] = e
	}
	return New(merged)
}

// Rate returns the exchange rate for code, or 1 when the code is unknown.
func (t *Table) Rate(code string) float64 {
	if e, ok := t.entries[normalizeCode(code)]; ok {
		return e.Rate
	}
	return 1
}

// Known reports whether code has an explicit entry.
func (t *Table) Known(code string) bool {
	_, ok := t.entries[normalizeCode(code)]
	return ok
}

// Country returns the country label associated with code, or "" when unknown.
func (t *Table) Country(code string) string {
	return t.entries[normalizeCode(code)].Country
}

// Codes returns all known codes in sorted order.
func (t *Table) Codes() []string {
	codes := make([]string, 0, len(t.entries))
	for code := range t.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Rates returns a copy of the code -> rate mapping.
func (t *Table) Rates() map[string]float64 {
	out := make(map[string]float64, len(t.entries))
	for code, e := range t.entries {
		out[code] = e.Rate
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
