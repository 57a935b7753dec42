package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// Result is what a source lookup returns.
type Result struct {
	Source  Kind
	Records []Record
	Summary string
}

// NewResult tags raw records with the shape of kind.
func NewResult(kind Kind, rows []Fields, summary string) Result {
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Wrap(kind, row))
	}
	return Result{Source: kind, Records: records, Summary: summary}
}

// Degraded is the result reported for a source whose lookup failed. It carries
// no records and an error-describing summary.
func Degraded(kind Kind, err error) Result {
	return Result{Source: kind, Records: []Record{}, Summary: "Error: " + err.Error()}
}

// Failed reports whether r came from a failed lookup.
func (r Result) Failed() bool {
	return len(r.Records) == 0 && strings.HasPrefix(r.Summary, "Error: ")
}

type resultJSON struct {
	Source  Kind     `json:"source"`
	Records []Fields `json:"records"`
	Summary string   `json:"summary"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Source: r.Source, Records: make([]Fields, 0, len(r.Records)), Summary: r.Summary}
	for _, rec := range r.Records {
		out.Records = append(out.Records, rec.Raw())
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = NewResult(in.Source, in.Records, in.Summary)
	return nil
}

// Lookup is a data-source collaborator.
type Lookup interface {
	Lookup(ctx context.Context, query string) (Result, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, query string) (Result, error)

func (f LookupFunc) Lookup(ctx context.Context, query string) (Result, error) {
	return f(ctx, query)
}

// Guard wraps a Lookup so that nothing escapes its boundary: returned errors
// and panics both become a Degraded result, and the result is always tagged
// with kind.
func Guard(kind Kind, l Lookup) Lookup {
	return LookupFunc(func(ctx context.Context, query string) (res Result, err error) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("source: lookup panicked", "source", kind, "panic", p, "stack", string(debug.Stack()))
				res, err = Degraded(kind, fmt.Errorf("lookup panicked: %v", p)), nil
			}
		}()

		res, err = l.Lookup(ctx, query)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%s lookup timed out", kind)
			}
			return Degraded(kind, err), nil
		}
		res.Source = kind
		if res.Records == nil {
			res.Records = []Record{}
		}
		return res, nil
	})
}
