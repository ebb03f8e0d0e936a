package portal

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
)

// Dashboard is the composite landing screen.
type Dashboard struct {
	Classes    []school.Class
	Attendance []school.Attendance
	Results    school.ResultsSummary
}

// Dashboard loads the classes, the attendance and the results summary concurrently.
// The first failure cancels the other loads and is returned.
func (p *Portal) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		classes, err := p.Classes.List(ctx)
		d.Classes = classes
		return err
	})
	g.Go(func() error {
		att, err := p.Attendance.List(ctx)
		d.Attendance = att
		return err
	})
	g.Go(func() error {
		sum, err := p.ResultsSummary.Run(ctx, core.ID(""))
		d.Results = sum
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
