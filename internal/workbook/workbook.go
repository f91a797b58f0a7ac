// Package workbook is the tabular sink: one xlsx sheet per profile, a
// header row naming the columns, data rows below. Required columns are
// discovered by normalized header text and created when absent. The
// workbook is mutated in memory and persisted exactly once per run.
package workbook

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/stigtools/estig/internal/merge"
	"github.com/stigtools/estig/internal/model"
)

// Normalized header names of the columns the merge writes. Created
// headers use these exact strings.
const (
	colVulnID           = "vuln id"
	colExpectedStatus   = "expectedstatus"
	colValidTrueStatus  = "validtruestatus"
	colValidTrueComment = "validtruecomment"

	// legacy identifier header accepted by the export
	colVKey = "v key"

	headerAnswerKeyName = "AnswerKey Name"
)

type Workbook struct {
	f    *excelize.File
	path string
}

// Open loads an existing workbook. The caller owns it for the duration of
// the run; Save persists all accumulated changes in one write.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	return &Workbook{f: f, path: path}, nil
}

func (w *Workbook) Save() error {
	if err := w.f.Save(); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.path, err)
	}
	return nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

func (w *Workbook) Sheets() []string {
	return w.f.GetSheetList()
}

// Merge appends one row per planned identifier to the profile's sheet and
// returns the identifiers actually written. A missing sheet returns
// model.ErrMissingSheet; sheet provisioning belongs to init, not merge.
// The existing-identifier snapshot is captured here, once, and every row
// is re-checked against it before writing.
func (w *Workbook) Merge(profile string, incoming []string, comment string) ([]string, error) {
	if comment == "" {
		comment = model.DefaultComment
	}

	idx, err := w.f.GetSheetIndex(profile)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", profile, err)
	}
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", profile, model.ErrMissingSheet)
	}

	rows, err := w.f.GetRows(profile)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", profile, err)
	}

	hdr := newHeader(rows)
	idCol, err := hdr.resolveOrCreate(w.f, profile, colVulnID)
	if err != nil {
		return nil, err
	}
	expCol, err := hdr.resolveOrCreate(w.f, profile, colExpectedStatus)
	if err != nil {
		return nil, err
	}
	vtsCol, err := hdr.resolveOrCreate(w.f, profile, colValidTrueStatus)
	if err != nil {
		return nil, err
	}
	vtcCol, err := hdr.resolveOrCreate(w.f, profile, colValidTrueComment)
	if err != nil {
		return nil, err
	}

	existing := merge.Snapshot(columnValues(rows, idCol))
	plan := merge.Plan(existing, incoming)

	next := len(rows) + 1
	if next == 1 {
		// the sheet was empty and row 1 now holds the created headers
		next = 2
	}
	var added []string
	for _, id := range plan {
		if _, ok := existing[id]; ok {
			// plan is not trusted blindly
			continue
		}
		cells := []struct {
			col   int
			value string
		}{
			{idCol, id},
			{expCol, model.StatusNotReviewed},
			{vtsCol, model.StatusNotAFinding},
			{vtcCol, comment},
		}
		for _, c := range cells {
			if err := setCell(w.f, profile, c.col, next, c.value); err != nil {
				return added, err
			}
		}
		existing[id] = struct{}{}
		added = append(added, id)
		next++
	}
	return added, nil
}

// AnswerRows reads the profile's data rows for the XML export, applying
// the blank-field defaults. Rows without an identifier are skipped. No
// columns are created; absent optional columns just yield defaults.
func (w *Workbook) AnswerRows(profile string) ([]model.AnswerRow, error) {
	rows, err := w.f.GetRows(profile)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", profile, err)
	}

	hdr := newHeader(rows)
	idCol := hdr.find(colVulnID)
	if idCol == 0 {
		idCol = hdr.find(colVKey)
	}
	if idCol == 0 {
		return nil, nil
	}
	keyCol := hdr.find(strings.ToLower(headerAnswerKeyName))
	expCol := hdr.find(colExpectedStatus)
	vtsCol := hdr.find(colValidTrueStatus)
	vtcCol := hdr.find(colValidTrueComment)

	var out []model.AnswerRow
	for i := 1; i < len(rows); i++ {
		id := cellAt(rows[i], idCol)
		if id == "" {
			continue
		}
		row := model.AnswerRow{
			VulnID:           id,
			KeyName:          fallback(cellAt(rows[i], keyCol), model.DefaultAnswerKey),
			ExpectedStatus:   fallback(cellAt(rows[i], expCol), model.StatusNotReviewed),
			ValidTrueStatus:  fallback(cellAt(rows[i], vtsCol), model.StatusNotAFinding),
			ValidTrueComment: cellAt(rows[i], vtcCol),
		}
		out = append(out, row)
	}
	return out, nil
}

// header tracks the first row by normalized name and the current width so
// created columns land after the last occupied one.
type header struct {
	byName map[string]int // normalized name -> 1-based column
	width  int
}

func newHeader(rows [][]string) *header {
	h := &header{byName: make(map[string]int)}
	if len(rows) == 0 {
		return h
	}
	for i, cell := range rows[0] {
		name := normalize(cell)
		if name == "" {
			continue
		}
		if _, ok := h.byName[name]; !ok {
			h.byName[name] = i + 1
		}
	}
	h.width = len(rows[0])
	return h
}

func (h *header) find(name string) int {
	return h.byName[name]
}

func (h *header) resolveOrCreate(f *excelize.File, sheet, name string) (int, error) {
	if col := h.byName[name]; col != 0 {
		return col, nil
	}
	col := h.width + 1
	if err := setCell(f, sheet, col, 1, name); err != nil {
		return 0, err
	}
	h.byName[name] = col
	h.width = col
	return col, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cellAt(row []string, col int) string {
	if col == 0 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func columnValues(rows [][]string, col int) []string {
	var out []string
	for i := 1; i < len(rows); i++ {
		if v := cellAt(rows[i], col); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellStr(sheet, cell, value)
}

// InitFromTemplate copies the template workbook to dst, adds a sheet per
// allow-listed profile that the template lacks (cloning the template's
// first sheet header row), and makes sure every sheet carries an
// "AnswerKey Name" header.
func InitFromTemplate(src, dst string, profiles []string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("workbook %s already exists", dst)
		}
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading template %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing workbook %s: %w", dst, err)
	}

	f, err := excelize.OpenFile(dst)
	if err != nil {
		return fmt.Errorf("opening workbook %s: %w", dst, err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("template %s has no sheets", src)
	}
	headerRows, err := f.GetRows(sheets[0])
	if err != nil {
		return err
	}
	var headers []string
	if len(headerRows) > 0 {
		headers = headerRows[0]
	}

	have := make(map[string]struct{}, len(sheets))
	for _, s := range sheets {
		have[s] = struct{}{}
	}
	for _, profile := range profiles {
		if _, ok := have[profile]; ok {
			continue
		}
		if _, err := f.NewSheet(profile); err != nil {
			return fmt.Errorf("creating sheet %s: %w", profile, err)
		}
		for i, h := range headers {
			if err := setCell(f, profile, i+1, 1, h); err != nil {
				return err
			}
		}
	}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		hdr := newHeader(rows)
		if hdr.find(normalize(headerAnswerKeyName)) != 0 {
			continue
		}
		if err := setCell(f, sheet, hdr.width+1, 1, headerAnswerKeyName); err != nil {
			return err
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("saving workbook %s: %w", dst, err)
	}
	return nil
}

// Clear blanks every cell below the header row on every sheet.
func Clear(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return err
		}
		for r := 2; r <= len(rows); r++ {
			for c := 1; c <= len(rows[r-1]); c++ {
				if err := setCell(f, sheet, c, r, ""); err != nil {
					return err
				}
			}
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}
