package portal

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/apps/portal/sheets"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
)

// ImportStudents creates the students of an xlsx workbook into classID, then reloads the students.
func (p *Portal) ImportStudents(ctx context.Context, r io.Reader, classID core.ID) (sheets.Report, error) {
	rep, err := sheets.ImportStudents(ctx, r, classID, func(ctx context.Context, d school.StudentDraft) error {
		_, err := p.Students.Create(ctx, d)
		return err
	})
	if err != nil {
		return rep, err
	}
	p.logger.Info("students imported", map[string]interface{}{
		"class": classID, "imported": rep.Imported, "failed": len(rep.Errors),
	})
	return rep, nil
}

// Export writes the loaded items of resource to an xlsx workbook.
func (p *Portal) Export(w io.Writer, name string) error {
	m, ok := p.Manager(name)
	if !ok {
		return errors.Errorf("unknown resource %q", name)
	}
	return sheets.Export(w, name, m.Items())
}
