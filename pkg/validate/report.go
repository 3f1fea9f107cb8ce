package validate

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report is the JSON form of a validation run, printed by "mudmapper check --json".
type Report struct {
	Map           string                 `json:"map"`
	TotalFindings int                    `json:"total_findings"`
	Categories    map[string]CategorySum `json:"categories"`
	Findings      []Finding              `json:"findings"`
}

// CategorySum summarizes findings for a single category.
type CategorySum struct {
	Total   int    `json:"total"`
	Fixable int    `json:"fixable"`
	Fixed   int    `json:"fixed"`
	Label   string `json:"label"`
}

var categoryLabels = map[Category]string{
	CatIntegrityError: "Referential Integrity Errors",
	CatIntegrityWarn:  "Missing Rooms",
	CatDirection:      "Non-canonical Directions",
	CatEdge:           "Exit/Edge Mismatches",
	CatLifecycle:      "Visit Bookkeeping",
}

// MarshalText makes categories readable in JSON.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// MarshalText makes severities readable in JSON.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// GenerateReport builds a Report from the validator's current findings.
func GenerateReport(v *Validator) *Report {
	r := &Report{
		Map:           v.doc.Name,
		TotalFindings: len(v.findings),
		Categories:    make(map[string]CategorySum),
		Findings:      v.findings,
	}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}

	catCounts := make(map[Category]*CategorySum)
	for _, f := range v.findings {
		cs, ok := catCounts[f.Category]
		if !ok {
			cs = &CategorySum{Label: categoryLabels[f.Category]}
			catCounts[f.Category] = cs
		}
		cs.Total++
		if f.Fixable {
			cs.Fixable++
		}
		if f.Fixed {
			cs.Fixed++
		}
	}
	for cat, cs := range catCounts {
		r.Categories[cat.String()] = *cs
	}
	return r
}

// WriteJSON writes the report as JSON to the given writer.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes one line per finding followed by per-category totals.
func (r *Report) WriteText(w io.Writer) error {
	for _, f := range r.Findings {
		mark := " "
		switch {
		case f.Fixed:
			mark = "x"
		case f.Fixable:
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "[%s] %-7s %-12s %s\n", mark, f.Severity, f.ID, f.Description); err != nil {
			return err
		}
	}
	for _, cat := range Categories {
		cs, ok := r.Categories[cat.String()]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s: %d (%d fixable, %d fixed)\n", cs.Label, cs.Total, cs.Fixable, cs.Fixed); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d findings in %s\n", r.TotalFindings, r.Map)
	return err
}
