package visual

import (
	"strconv"
	"strings"

	"github.com/aiox-platform/gloser/internal/source"
)

// fallbackExpiryYear is charted when an expiry date has no readable year.
const fallbackExpiryYear = 2025

func trade(records []source.Record) []Descriptor {
	var out []Descriptor
	for _, rec := range records {
		r := source.TradeRecord{Fields: rec.Raw()}
		name := r.Name()
		d := r.Detail()

		if sources, ok := d.List("top_import_sources"); ok {
			var labels []string
			var data []float64
			for _, s := range sources {
				m, _ := s.(map[string]any)
				f := source.Fields(m)
				labels = append(labels, f.TextOr("Unknown", "country"))
				data = append(data, f.Float("percentage", "percent"))
			}
			out = append(out, Descriptor{
				Type:     Pie,
				Title:    "Top Import Sources for " + name,
				Labels:   labels,
				Datasets: []Dataset{{Data: data, BackgroundColor: colorsOf(palette)}},
			})
		}

		if line, ok := yearlyTrend(d, name); ok {
			out = append(out, line)
		}

		out = append(out, Descriptor{
			Type:    Table,
			Title:   "Trade Summary for " + name,
			Columns: []string{"Metric", "Value"},
			Rows: [][]string{
				{"Drug Name", name},
				{"Category", r.Category()},
				{"Import Volume (MT)", detailOrRecord(d, r.Fields, "import_volume_mt")},
				{"Export Volume (MT)", detailOrRecord(d, r.Fields, "export_volume_mt")},
				{"Import Value (USD M)", d.TextOr("N/A", "import_value_million_usd")},
				{"Export Value (USD M)", d.TextOr("N/A", "export_value_million_usd")},
			},
		})
	}
	return out
}

func detailOrRecord(detail, rec source.Fields, key string) string {
	if s := detail.Text(key); s != "" {
		return s
	}
	return rec.TextOr("N/A", key)
}

// yearlyTrend supports {"2019": 4100, ...} and
// [{"year": 2019, "import_mt": 100, "export_mt": 50}, ...].
func yearlyTrend(d source.Fields, name string) (Descriptor, bool) {
	if m, ok := d.Map("yearly_trend"); ok {
		years := m.SortedKeys()
		values := make([]float64, len(years))
		for i, y := range years {
			values[i] = source.Number(m[y])
		}
		return Descriptor{
			Type:   Line,
			Title:  "Yearly Volume Trend for " + name,
			Labels: years,
			Datasets: []Dataset{{
				Label:       "Volume (MT)",
				Data:        values,
				BorderColor: "#36A2EB",
				Fill:        boolPtr(false),
			}},
		}, true
	}

	list, ok := d.List("yearly_trend")
	if !ok {
		return Descriptor{}, false
	}
	labels := make([]string, len(list))
	imports := make([]float64, len(list))
	exports := make([]float64, len(list))
	for i, item := range list {
		m, _ := item.(map[string]any)
		f := source.Fields(m)
		labels[i] = f.Text("year")
		imports[i] = f.Float("import_mt")
		exports[i] = f.Float("export_mt")
	}
	return Descriptor{
		Type:   Line,
		Title:  "Yearly Import/Export Trend for " + name,
		Labels: labels,
		Datasets: []Dataset{
			{Label: "Import (MT)", Data: imports, BorderColor: "#36A2EB", Fill: boolPtr(false)},
			{Label: "Export (MT)", Data: exports, BorderColor: "#FF6384", Fill: boolPtr(false)},
		},
	}, true
}

func market(records []source.Record) []Descriptor {
	var out []Descriptor

	top := head(records, maxChartRecords)
	areas := make([]string, len(top))
	sizes := make([]float64, len(top))
	growth := make([]float64, len(top))
	for i, rec := range top {
		r := source.MarketRecord{Fields: rec.Raw()}
		areas[i] = r.Area()
		sizes[i] = r.SizeMillions()
		growth[i] = r.Growth()
	}

	if anyNonZero(sizes) {
		out = append(out, Descriptor{
			Type:     Bar,
			Title:    "Market Size Comparison (USD Million)",
			Labels:   areas,
			Datasets: []Dataset{{Label: "Market Size (M)", Data: sizes, BackgroundColor: colorsOf(palette)}},
		})
	}
	if anyNonZero(growth) {
		out = append(out, Descriptor{
			Type:     Bar,
			Title:    "Growth Rate Comparison (CAGR %)",
			Labels:   areas,
			Datasets: []Dataset{{Label: "CAGR %", Data: growth, BackgroundColor: []string{"#4BC0C0"}}},
		})
	}

	rows := make([][]string, 0, maxTableRows)
	for _, rec := range head(records, maxTableRows) {
		f := rec.Raw()
		rows = append(rows, []string{
			f.TextOr("N/A", "area", "therapeutic_area"),
			f.TextOr("N/A", "market_size_usd"),
			f.TextOr("N/A", "cagr_percent", "growth_rate") + "%",
			f.TextOr("N/A", "competition_level"),
			ellipsize(f.TextOr("N/A", "key_trend"), 50),
		})
	}
	out = append(out, Descriptor{
		Type:    Table,
		Title:   "Market Intelligence Data",
		Columns: []string{"Therapeutic Area", "Market Size", "CAGR %", "Competition", "Key Trend"},
		Rows:    rows,
	})
	return out
}

func patent(records []source.Record) []Descriptor {
	rows := make([][]string, 0, maxTableRows)
	for _, rec := range head(records, maxTableRows) {
		r := source.PatentRecord{Fields: rec.Raw()}
		rows = append(rows, []string{
			r.Molecule(),
			r.PatentID(),
			r.TextOr("N/A", "status"),
			r.TextOr("N/A", "expiry_date"),
			ellipsize(r.Assignee(), 25),
		})
	}
	out := []Descriptor{{
		Type:    Table,
		Title:   "Patent Information",
		Columns: []string{"Molecule", "Patent ID", "Status", "Expiry Date", "Assignee"},
		Rows:    rows,
	}}

	var labels []string
	var years []float64
	statuses := newCounter()
	for _, rec := range records {
		r := source.PatentRecord{Fields: rec.Raw()}
		statuses.add(r.Status())
		if exp := r.Expiry(); exp != "" && len(labels) < maxChartRecords {
			labels = append(labels, cut(r.ShortName(), 15))
			years = append(years, expiryYear(exp))
		}
	}
	if len(labels) > 0 {
		out = append(out, Descriptor{
			Type:     Bar,
			Title:    "Patent Expiry Timeline",
			Labels:   labels,
			Datasets: []Dataset{{Label: "Expiry Year", Data: years, BackgroundColor: []string{"#9966FF"}}},
		})
	}
	out = append(out, statuses.pie("Patent Status Distribution", statusPalette))
	return out
}

// expiryYear reads the leading year of dates like 2031-05-12 or 2031/05/12.
func expiryYear(date string) float64 {
	sep := strings.IndexAny(date, "-/")
	if sep <= 0 {
		return fallbackExpiryYear
	}
	y, err := strconv.Atoi(strings.TrimSpace(date[:sep]))
	if err != nil {
		return fallbackExpiryYear
	}
	return float64(y)
}

func trials(records []source.Record) []Descriptor {
	rows := make([][]string, 0, maxTableRows)
	for _, rec := range head(records, maxTableRows) {
		r := source.TrialRecord{Fields: rec.Raw()}
		rows = append(rows, []string{
			r.TrialID(),
			ellipsize(r.Title(), 40),
			orDefault(r.Phase(), "N/A"),
			orDefault(r.Status(), "N/A"),
			ellipsize(r.Sponsor(), 25),
			r.Country(),
		})
	}

	phases, statuses := newCounter(), newCounter()
	for _, rec := range records {
		r := source.TrialRecord{Fields: rec.Raw()}
		phases.add(orDefault(r.Phase(), "Unknown"))
		statuses.add(orDefault(r.Status(), "Unknown"))
	}

	return []Descriptor{
		{
			Type:    Table,
			Title:   "Clinical Trials Data",
			Columns: []string{"Trial ID", "Title", "Phase", "Status", "Sponsor", "Country"},
			Rows:    rows,
		},
		phases.pie("Clinical Trials by Phase", palette),
		statuses.pie("Clinical Trials by Status", trialPalette),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
