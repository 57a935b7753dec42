package source

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fields is the raw key/value payload of a record. Field names vary per
// dataset, so every accessor takes a chain of aliases and the first
// non-null one wins.
type Fields map[string]any

// First returns the first alias holding a value. Missing keys, null and the
// empty string are absent; zero and false are values.
func (f Fields) First(aliases ...string) (any, bool) {
	for _, a := range aliases {
		if v, ok := f[a]; ok && !isAbsent(v) {
			return v, true
		}
	}
	return nil, false
}

// Text resolves aliases and renders the value as display text.
func (f Fields) Text(aliases ...string) string {
	v, ok := f.First(aliases...)
	if !ok {
		return ""
	}
	return Display(v)
}

// TextOr is Text with a default for the all-absent case.
func (f Fields) TextOr(def string, aliases ...string) string {
	if s := f.Text(aliases...); s != "" {
		return s
	}
	return def
}

// Float resolves aliases and converts the value to a number. Numeric strings
// are accepted, a trailing percent sign is ignored.
func (f Fields) Float(aliases ...string) float64 {
	v, ok := f.First(aliases...)
	if !ok {
		return 0
	}
	return Number(v)
}

// Map returns a nested object field.
func (f Fields) Map(key string) (Fields, bool) {
	switch m := f[key].(type) {
	case map[string]any:
		return Fields(m), len(m) > 0
	case Fields:
		return m, len(m) > 0
	}
	return nil, false
}

// List returns a nested array field.
func (f Fields) List(key string) ([]any, bool) {
	l, ok := f[key].([]any)
	return l, ok && len(l) > 0
}

// SortedKeys returns the keys of f in lexical order.
func (f Fields) SortedKeys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// Display renders a JSON-decoded value for tables and prompts.
func Display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, _ := json.Marshal(t)
		return string(b)
	}
	return fmt.Sprint(v)
}

// Number converts a JSON-decoded value to float64, returning 0 when it is
// not numeric.
func Number(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		s = strings.ReplaceAll(s, ",", "")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Record is a tagged union over the record shapes of the known sources.
type Record interface {
	Kind() Kind
	Raw() Fields
}

// Wrap tags raw fields with the record shape of kind.
func Wrap(kind Kind, f Fields) Record {
	if f == nil {
		f = Fields{}
	}
	switch kind {
	case Market:
		return MarketRecord{f}
	case Trade:
		return TradeRecord{f}
	case Patent:
		return PatentRecord{f}
	case Clinical:
		return TrialRecord{f}
	default:
		return WebRecord{f}
	}
}

// TradeRecord is an import/export entry.
type TradeRecord struct{ Fields }

func (TradeRecord) Kind() Kind { return Trade }
func (r TradeRecord) Raw() Fields { return r.Fields }
func (r TradeRecord) Name() string { return r.TextOr("Unknown", "drug_name", "hs_desc", "drug") }
func (r TradeRecord) Category() string { return r.TextOr("N/A", "category") }

// Detail returns the per-country sub-record when one exists, otherwise the
// record itself. The first country in lexical order is used.
func (r TradeRecord) Detail() Fields {
	countries, ok := r.Map("country_data")
	if !ok {
		return r.Fields
	}
	for _, k := range countries.SortedKeys() {
		if d, ok := countries.Map(k); ok {
			return d
		}
	}
	return r.Fields
}

// MarketRecord is a therapeutic-area market entry.
type MarketRecord struct{ Fields }

func (MarketRecord) Kind() Kind { return Market }
func (r MarketRecord) Raw() Fields { return r.Fields }
func (r MarketRecord) Area() string {
	return r.TextOr("Unknown", "area", "therapeutic_area")
}
func (r MarketRecord) Growth() float64 { return r.Float("cagr_percent", "growth_rate") }

// SizeMillions normalises market_size_usd to USD millions. Strings tagged
// "billion" are scaled by 1000; anything unparseable is 0.
func (r MarketRecord) SizeMillions() float64 {
	v, ok := r.First("market_size_usd")
	if !ok {
		return 0
	}
	s, isString := v.(string)
	if !isString {
		return Number(v)
	}
	s = strings.ToLower(strings.ReplaceAll(s, ",", ""))
	mult := 1.0
	switch {
	case strings.Contains(s, "billion"):
		mult = 1000
		s = strings.ReplaceAll(s, "billion", "")
	case strings.Contains(s, "million"):
		s = strings.ReplaceAll(s, "million", "")
	}
	s = strings.TrimSpace(strings.NewReplacer("$", "", "usd", "").Replace(s))
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n * mult
}

// PatentRecord is a patent filing.
type PatentRecord struct{ Fields }

func (PatentRecord) Kind() Kind { return Patent }
func (r PatentRecord) Raw() Fields { return r.Fields }
func (r PatentRecord) Molecule() string { return r.TextOr("N/A", "molecule", "drug_name") }
func (r PatentRecord) PatentID() string { return r.TextOr("N/A", "patent_id", "patent_number") }
func (r PatentRecord) Status() string { return r.TextOr("Unknown", "status") }
func (r PatentRecord) Expiry() string { return r.Text("expiry_date") }
func (r PatentRecord) Assignee() string { return r.TextOr("N/A", "assignee", "patent_owner") }
func (r PatentRecord) ShortName() string { return r.TextOr("Unknown", "molecule", "title") }

// TrialRecord is a clinical trial, either from the registry API (CamelCase
// fields) or the local dataset (snake_case fields).
type TrialRecord struct{ Fields }

func (TrialRecord) Kind() Kind { return Clinical }
func (r TrialRecord) Raw() Fields { return r.Fields }
func (r TrialRecord) TrialID() string { return r.TextOr("N/A", "NCTId", "trial_id", "nct_id") }
func (r TrialRecord) Title() string { return r.TextOr("N/A", "BriefTitle", "drug", "drug_name") }
func (r TrialRecord) Phase() string { return r.Text("Phase", "phase") }
func (r TrialRecord) Status() string { return r.Text("OverallStatus", "status") }
func (r TrialRecord) Sponsor() string { return r.TextOr("N/A", "LeadSponsorName", "sponsor") }
func (r TrialRecord) Country() string { return r.TextOr("N/A", "LocationCountry", "country") }

// WebRecord is a search hit.
type WebRecord struct{ Fields }

func (WebRecord) Kind() Kind { return Web }
func (r WebRecord) Raw() Fields { return r.Fields }
