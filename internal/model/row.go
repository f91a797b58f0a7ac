package model

// AnswerRow is one workbook data row normalized for the XML export:
// blank key name, expected status and valid-true status have already been
// replaced with their defaults by the tabular store.
type AnswerRow struct {
	VulnID           string
	KeyName          string
	ExpectedStatus   string
	ValidTrueStatus  string
	ValidTrueComment string
}
