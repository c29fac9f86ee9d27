// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package validator

// Report groups a flat violation list by kind and severity, per §4.6's
// "per-law report builder" requirement.
type Report struct {
	Total         int
	BySeverity    map[Severity]int
	ByKind        map[ViolationKind]int
	Violations    []Violation
}

// BuildReport groups violations into a Report.
func BuildReport(violations []Violation) *Report {
	r := &Report{
		BySeverity: map[Severity]int{},
		ByKind:     map[ViolationKind]int{},
		Violations: violations,
	}
	for _, v := range violations {
		r.Total++
		r.BySeverity[v.Severity]++
		r.ByKind[v.Kind]++
	}
	return r
}

// jsonViolation is the wire shape for a Violation.
type jsonViolation struct {
	Kind         string         `json:"kind"`
	Severity     string         `json:"severity"`
	EntityID     string         `json:"entity_id"`
	Message      string         `json:"message"`
	Details      map[string]any `json:"details,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	LineNumber   int            `json:"line_number,omitempty"`
	ColumnNumber int            `json:"column_number,omitempty"`
	OldValue     any            `json:"old_value,omitempty"`
	NewValue     any            `json:"new_value,omitempty"`
	CodeSnippet  string         `json:"code_snippet,omitempty"`
}

// ForJSON converts violations into their serializable wire shape.
func ForJSON(violations []Violation) []jsonViolation {
	out := make([]jsonViolation, len(violations))
	for i, v := range violations {
		out[i] = jsonViolation{
			Kind: string(v.Kind), Severity: string(v.Severity), EntityID: v.EntityID,
			Message: v.Message, Details: v.Details,
			FilePath: v.FilePath, LineNumber: v.LineNumber, ColumnNumber: v.ColumnNumber,
			OldValue: v.OldValue, NewValue: v.NewValue, CodeSnippet: v.CodeSnippet,
		}
	}
	return out
}
