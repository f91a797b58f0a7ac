package model

import "strings"

// Sentinel values the merge pipeline depends on. These mirror the
// Evaluate-STIG checklist conventions and must not be localized.
const (
	TitlePrefix = "Evaluate-STIG_"

	StatusNotReviewed = "Not_Reviewed"
	StatusNotAFinding = "NotAFinding"

	DefaultComment   = "STIG COMPLIANT"
	DefaultAnswerKey = "DEFAULT"

	UnknownHost = "Unknown Host"
)

// ScanRecord is one parsed .cklb checklist. Immutable after parsing.
type ScanRecord struct {
	Title    string
	Host     string
	Sections []Section
}

// Section groups the findings of one STIG inside a checklist.
type Section struct {
	Name     string
	Findings []Finding
}

// Finding is a single rule evaluation. ID is the V-key (group_id, falling
// back to vuln_id). Status is kept verbatim; consumers compare it
// case-insensitively.
type Finding struct {
	ID     string
	Status string
}

// Profile derives the workbook sheet / XML document name from the
// checklist title. ok is false when the title lacks the required prefix.
func (r ScanRecord) Profile() (string, bool) {
	return strings.CutPrefix(r.Title, TitlePrefix)
}

// Unresolved reports whether status means "not yet evaluated".
func Unresolved(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), StatusNotReviewed)
}
