// Package sheets imports students from, and exports collections to, xlsx workbooks.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
)

// Student import columns, matched against the header row (case and spacing insensitive).
const (
	ColAdmissionNumber = "admission_number"
	ColFirstName       = "first_name"
	ColLastName        = "last_name"
	ColEmail           = "email"
	ColDateOfBirth     = "date_of_birth"
	ColGender          = "gender"
)

var requiredColumns = []string{ColAdmissionNumber, ColFirstName, ColLastName}

// CreateStudent submits one imported student.
type CreateStudent func(ctx context.Context, draft school.StudentDraft) error

// RowError reports why a row was not imported; Row is 1-based, as displayed by spreadsheet apps.
type RowError struct {
	Row    int
	Fields map[string][]string
}

func (e RowError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return fmt.Sprintf("row %d: %s", e.Row, strings.Join(parts, "; "))
}

type Report struct {
	Imported int
	Skipped  int // blank rows
	Errors   []RowError
}

// ImportStudents reads the first sheet of r, one student per row after the header row.
// Every row is validated then created into classID; failing rows are reported and the import goes on.
func ImportStudents(ctx context.Context, r io.Reader, classID core.ID, create CreateStudent) (Report, error) {
	var rep Report

	f, err := excelize.OpenReader(r)
	if err != nil {
		return rep, errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return rep, errors.New("workbook does not contain any sheet")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return rep, errors.Wrapf(err, "reading sheet %s", sheet)
	}
	if len(rows) == 0 {
		return rep, errors.New("sheet is empty")
	}

	cols := headerIndex(rows[0])
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return rep, errors.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	v := core.NewValidator()
	for i, row := range rows[1:] {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if blank(row) {
			rep.Skipped++
			continue
		}
		cell := func(col string) string {
			if idx, ok := cols[col]; ok && idx < len(row) {
				return row[idx]
			}
			return ""
		}
		form := school.NewForm(school.StudentDraft{
			AdmissionNumber: cell(ColAdmissionNumber),
			FirstName:       cell(ColFirstName),
			LastName:        cell(ColLastName),
			Email:           cell(ColEmail),
			DateOfBirth:     strings.TrimSpace(cell(ColDateOfBirth)),
			Gender:          strings.ToUpper(strings.TrimSpace(cell(ColGender))),
			Class:           classID,
		})
		rowNum := i + 2
		if !form.Validate(v) {
			rep.Errors = append(rep.Errors, RowError{Row: rowNum, Fields: form.Errors})
			continue
		}
		if err := create(ctx, form.Draft); err != nil {
			rep.Errors = append(rep.Errors, RowError{Row: rowNum, Fields: core.Normalize(err).FieldErrors()})
			continue
		}
		rep.Imported++
	}
	return rep, nil
}

// Export writes records (any JSON-encodable values) to one sheet: a header row, then one row per record.
// Columns are the union of the record members, "id" first; nested values are written as JSON.
func Export(w io.Writer, sheet string, records []interface{}) error {
	rows := make([]map[string]interface{}, 0, len(records))
	seen := make(map[string]bool)
	for _, rec := range records {
		row, err := flatten(rec)
		if err != nil {
			return err
		}
		for k := range row {
			seen[k] = true
		}
		rows = append(rows, row)
	}
	headers := make([]string, 0, len(seen))
	for k := range seen {
		if k != "id" {
			headers = append(headers, k)
		}
	}
	sort.Strings(headers)
	if seen["id"] {
		headers = append([]string{"id"}, headers...)
	}

	f := excelize.NewFile()
	defer f.Close()
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return errors.Wrapf(err, "creating sheet %s", sheet)
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return errors.Wrap(err, "removing default sheet")
		}
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return errors.Wrapf(err, "writing header %s", h)
		}
	}
	for r, row := range rows {
		for c, h := range headers {
			val, ok := row[h]
			if !ok || val == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return errors.Wrapf(err, "writing %s", cell)
			}
		}
	}
	return errors.Wrap(f.Write(w), "writing workbook")
}

func flatten(rec interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.Wrap(err, "record is not an object")
	}
	for k, v := range obj {
		switch v.(type) {
		case map[string]interface{}, []interface{}:
			nested, _ := json.Marshal(v)
			obj[k] = string(nested)
		}
	}
	return obj, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.Join(strings.Fields(h), "_"))
		if key != "" {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	return cols
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
