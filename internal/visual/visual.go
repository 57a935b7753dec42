// Package visual turns source results into chart and table descriptors that
// a Chart.js front end can render directly.
package visual

import (
	"sort"

	"github.com/aiox-platform/gloser/internal/source"
)

type Type string

const (
	Pie   Type = "pie"
	Bar   Type = "bar"
	Line  Type = "line"
	Table Type = "table"
)

// Dataset is one series of a chart.
type Dataset struct {
	Label           string    `json:"label,omitempty"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	BorderColor     string    `json:"borderColor,omitempty"`
	Fill            *bool     `json:"fill,omitempty"`
}

// Descriptor is a chart (Labels and Datasets) or a table (Columns and Rows).
type Descriptor struct {
	Type     Type       `json:"type"`
	Title    string     `json:"title"`
	Labels   []string   `json:"labels,omitempty"`
	Datasets []Dataset  `json:"datasets,omitempty"`
	Columns  []string   `json:"columns,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
}

var (
	palette       = []string{"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF"}
	statusPalette = []string{"#10B981", "#EF4444", "#F59E0B", "#6366F1", "#8B5CF6"}
	trialPalette  = []string{"#10B981", "#3B82F6", "#F59E0B", "#EF4444", "#8B5CF6"}
)

const (
	maxChartRecords = 5
	maxTableRows    = 10
)

// Visualize builds descriptors for every result that has records. Results are
// processed in catalog order, so the output does not depend on the order in
// which lookups finished. It never mutates its input.
func Visualize(results []source.Result) []Descriptor {
	ordered := make([]source.Result, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source.Order() < ordered[j].Source.Order()
	})

	out := make([]Descriptor, 0)
	for _, r := range ordered {
		if len(r.Records) == 0 {
			continue
		}
		switch r.Source {
		case source.Trade:
			out = append(out, trade(r.Records)...)
		case source.Market:
			out = append(out, market(r.Records)...)
		case source.Patent:
			out = append(out, patent(r.Records)...)
		case source.Clinical:
			out = append(out, trials(r.Records)...)
		}
		// Web results are text only.
	}
	return out
}

// counter counts labels keeping first-seen order.
type counter struct {
	labels []string
	counts map[string]float64
}

func newCounter() *counter {
	return &counter{counts: make(map[string]float64)}
}

func (c *counter) add(label string) {
	if _, ok := c.counts[label]; !ok {
		c.labels = append(c.labels, label)
	}
	c.counts[label]++
}

func (c *counter) pie(title string, colors []string) Descriptor {
	data := make([]float64, len(c.labels))
	for i, l := range c.labels {
		data[i] = c.counts[l]
	}
	return Descriptor{
		Type:     Pie,
		Title:    title,
		Labels:   c.labels,
		Datasets: []Dataset{{Data: data, BackgroundColor: colorsOf(colors)}},
	}
}

// colorsOf copies a palette so descriptors never share backing arrays with
// the package-level palettes.
func colorsOf(p []string) []string {
	return append([]string(nil), p...)
}

func head(records []source.Record, n int) []source.Record {
	if len(records) > n {
		return records[:n]
	}
	return records
}

func anyNonZero(vals []float64) bool {
	for _, v := range vals {
		if v != 0 {
			return true
		}
	}
	return false
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func boolPtr(b bool) *bool { return &b }
