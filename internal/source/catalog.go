package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry configures one source.
type Entry struct {
	Kind    Kind   `yaml:"kind"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	File    string `yaml:"file,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
	Hint    string `yaml:"hint"`
}

// IsEnabled defaults to true when the flag is omitted.
func (e Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// TimeoutOr parses the entry timeout, falling back to def.
func (e Entry) TimeoutOr(def time.Duration) time.Duration {
	if e.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Catalog is the set of sources the planner may choose from.
type Catalog struct {
	Sources []Entry `yaml:"sources"`
}

// DefaultCatalog is used when no catalog file is present.
func DefaultCatalog() *Catalog {
	return &Catalog{Sources: []Entry{
		{Kind: Market, File: "iqvia_data.json",
			Hint: "Market share, sales, therapeutic area data (market size, competition, CAGR, trends)."},
		{Kind: Trade, File: "exim_data.json",
			Hint: "Import/Export trade data, API imports/exports, country-wise trade volumes."},
		{Kind: Patent, File: "patent_data.json",
			Hint: "Patent filings, expiry dates, assignees, patent status."},
		{Kind: Clinical, File: "clinical_data.json", Timeout: "10s",
			Hint: "Clinical trials from ClinicalTrials.gov (phases, sponsors, recruitment status)."},
		{Kind: Web, Timeout: "15s",
			Hint: "Latest news, FDA updates, recent developments and anything not covered by the other sources."},
	}}
}

// LoadCatalog reads a YAML catalog. A missing file yields DefaultCatalog.
// Entries without a hint inherit the default one.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading source catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing source catalog %s: %w", path, err)
	}

	defaults := DefaultCatalog()
	seen := make(map[Kind]bool, len(c.Sources))
	for i, e := range c.Sources {
		kind, err := ParseKind(string(e.Kind))
		if err != nil {
			return nil, fmt.Errorf("source catalog %s entry %d: %w", path, i, err)
		}
		if seen[kind] {
			return nil, fmt.Errorf("source catalog %s: duplicate entry for %s", path, kind)
		}
		seen[kind] = true
		c.Sources[i].Kind = kind
		if def, ok := defaults.Entry(kind); ok {
			if c.Sources[i].Hint == "" {
				c.Sources[i].Hint = def.Hint
			}
			if c.Sources[i].File == "" {
				c.Sources[i].File = def.File
			}
		}
	}
	return &c, nil
}

// Entry returns the entry for kind.
func (c *Catalog) Entry(kind Kind) (Entry, bool) {
	for _, e := range c.Sources {
		if e.Kind == kind {
			return e, true
		}
	}
	return Entry{}, false
}

// Enabled returns the enabled entries in catalog order.
func (c *Catalog) Enabled() []Entry {
	var out []Entry
	for _, k := range Kinds {
		if e, ok := c.Entry(k); ok && e.IsEnabled() {
			out = append(out, e)
		}
	}
	return out
}
