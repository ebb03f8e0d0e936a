// Package portal wires the client stack: storage, HTTP client, session, resource managers and notifications.
package portal

import (
	"context"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/endpoint"
	"github.com/trezcool/masomo-portal/core/resource"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/httpclient"
	"github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/services/notify"
	"github.com/trezcool/masomo-portal/storage"
)

// Deps overrides the dependencies New would otherwise build from the config.
type Deps struct {
	Logger    core.Logger
	Store     storage.Store
	Client    httpclient.Requester // base client, without credentials
	Validator *core.Validator
	Notifiers []notifysvc.Notifier // notified along with the bus
}

// ByDate filters the attendance of one day, optionally for one class.
type ByDate struct {
	Date  string
	Class core.ID
}

// Month selects the attendance statistics of one month.
type Month struct {
	Year  int
	Month int
}

type Portal struct {
	conf   *core.Config
	logger core.Logger
	store  storage.Store

	Client  httpclient.Requester
	Session *session.Session
	Bus     *notifysvc.Bus

	Schools       *resource.Manager[school.School]
	AcademicYears *resource.Manager[school.AcademicYear]
	Classes       *resource.Manager[school.Class]
	Subjects      *resource.Manager[school.Subject]
	Teachers      *resource.Manager[school.Teacher]
	Students      *resource.Manager[school.Student]
	Attendance    *resource.Manager[school.Attendance]
	Exams         *resource.Manager[school.Exam]
	ExamResults   *resource.Manager[school.ExamResult]
	Announcements *resource.Manager[school.Announcement]

	AttendanceByDate      *resource.Extension[school.Attendance, ByDate, []school.Attendance]
	AttendanceByStudent   *resource.Extension[school.Attendance, core.ID, []school.Attendance]
	AttendanceMonthly     *resource.Extension[school.Attendance, Month, school.AttendanceStats]
	ResultsSummary        *resource.Extension[school.ExamResult, core.ID, school.ResultsSummary]
	ResultsByClass        *resource.Extension[school.ExamResult, core.ID, []school.ExamResult]
	TeacherClasses        *resource.Extension[school.Teacher, core.ID, []school.Class]
	TeacherTimetable      *resource.Extension[school.Teacher, core.ID, []school.TimetableEntry]
	TeacherPhoto          *resource.Extension[school.Teacher, resource.Upload, school.Teacher]
	SubjectTeachers       *resource.Extension[school.Subject, core.ID, []school.Teacher]
	SubjectClasses        *resource.Extension[school.Subject, core.ID, []school.Class]
	SubjectCurriculum     *resource.Extension[school.Subject, core.ID, []school.CurriculumItem]
	AnnouncementTogglePin *resource.Extension[school.Announcement, core.ID, school.Announcement]
	StudentPhoto          *resource.Extension[school.Student, resource.Upload, school.Student]
	SchoolLogo            *resource.Extension[school.School, resource.Upload, school.School]

	managers map[string]resource.Untyped
}

// New builds a portal: storage -> base client -> session -> credential decorator -> managers.
// The persisted session is hydrated before New returns.
func New(ctx context.Context, conf *core.Config, deps Deps) (*Portal, error) {
	logger := deps.Logger
	if logger == nil {
		rl := logsvc.NewRollbarLogger(log.New(os.Stderr, "PORTAL : ", log.LstdFlags|log.Lmicroseconds), conf)
		rl.Enable(!conf.Debug)
		logger = rl
	}

	store := deps.Store
	if store == nil {
		var err error
		if store, err = storage.Open(ctx, conf.Storage); err != nil {
			return nil, errors.Wrap(err, "opening storage")
		}
	}

	base := deps.Client
	if base == nil {
		base = httpclient.NewFromConfig(conf.API, logger)
	}

	bus := notifysvc.NewBus()
	notifiers := notifysvc.Multi{bus, notifysvc.LogNotifier{Logger: logger}}
	notifiers = append(notifiers, deps.Notifiers...)

	sess := session.New(session.Options{
		Client:    base,
		Store:     store,
		Logger:    logger,
		Validator: deps.Validator,
		Notifier:  notifiers,
	})

	client := base
	if conf.API.AttachCredentials {
		client = httpclient.WithCredentials(base, sess)
	}

	p := &Portal{
		conf:     conf,
		logger:   logger,
		store:    store,
		Client:   client,
		Session:  sess,
		Bus:      bus,
		managers: make(map[string]resource.Untyped),
	}
	opts := func(set endpoint.Set, label, plural string) resource.Options {
		return resource.Options{
			Name:      set.Resource,
			Label:     label,
			Plural:    plural,
			Client:    client,
			Endpoints: set,
			Notifier:  notifiers,
			Logger:    logger,
		}
	}

	p.Schools = register(p, resource.New[school.School](opts(endpoint.Schools, "School", "")))
	p.AcademicYears = register(p, resource.New[school.AcademicYear](opts(endpoint.AcademicYears, "Academic year", "")))
	p.Classes = register(p, resource.New[school.Class](opts(endpoint.Classes, "Class", "Classes")))
	p.Subjects = register(p, resource.New[school.Subject](opts(endpoint.Subjects, "Subject", "")))
	p.Teachers = register(p, resource.New[school.Teacher](opts(endpoint.Teachers, "Teacher", "")))
	p.Students = register(p, resource.New[school.Student](opts(endpoint.Students, "Student", "")))
	p.Attendance = register(p, resource.New[school.Attendance](opts(endpoint.Attendance, "Attendance record", "")))
	p.Exams = register(p, resource.New[school.Exam](opts(endpoint.Exams, "Exam", "")))
	p.ExamResults = register(p, resource.New[school.ExamResult](opts(endpoint.ExamResults, "Exam result", "")))
	p.Announcements = register(p, resource.New[school.Announcement](opts(endpoint.Announcements, "Announcement", "")))

	p.extend()

	if err := sess.Hydrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return p, nil
}

func register[T resource.Identifiable](p *Portal, m *resource.Manager[T]) *resource.Manager[T] {
	p.managers[m.Name()] = m
	return m
}

func idPath(path func(string) string) func(core.ID) string {
	return func(id core.ID) string { return path(id.String()) }
}

func (p *Portal) extend() {
	p.AttendanceByDate = resource.Extend[school.Attendance, ByDate, []school.Attendance](p.Attendance, "byDate",
		resource.Fetch[ByDate, []school.Attendance](
			func(ByDate) string { return endpoint.AttendanceByDate },
			func(q ByDate) url.Values {
				v := url.Values{"date": {q.Date}}
				if !q.Class.IsZero() {
					v.Set("class", q.Class.String())
				}
				return v
			},
		),
		nil,
	)
	p.AttendanceByStudent = resource.Extend[school.Attendance, core.ID, []school.Attendance](p.Attendance, "byStudent",
		resource.Fetch[core.ID, []school.Attendance](idPath(endpoint.AttendanceByStudent), nil),
		nil,
	)
	p.AttendanceMonthly = resource.Extend[school.Attendance, Month, school.AttendanceStats](p.Attendance, "monthlyStats",
		resource.Fetch[Month, school.AttendanceStats](
			func(Month) string { return endpoint.AttendanceMonthlyStats },
			func(m Month) url.Values {
				v := url.Values{}
				if m.Year > 0 {
					v.Set("year", strconv.Itoa(m.Year))
				}
				if m.Month > 0 {
					v.Set("month", strconv.Itoa(m.Month))
				}
				return v
			},
		),
		nil,
	)

	p.ResultsSummary = resource.Extend[school.ExamResult, core.ID, school.ResultsSummary](p.ExamResults, "summary",
		resource.Fetch[core.ID, school.ResultsSummary](
			func(core.ID) string { return endpoint.ExamResultsSummary },
			func(exam core.ID) url.Values {
				if exam.IsZero() {
					return nil
				}
				return url.Values{"exam": {exam.String()}}
			},
		),
		nil,
	)
	p.ResultsByClass = resource.Extend[school.ExamResult, core.ID, []school.ExamResult](p.ExamResults, "byClass",
		resource.Fetch[core.ID, []school.ExamResult](idPath(endpoint.ExamResultsByClass), nil),
		nil,
	)

	p.TeacherClasses = resource.Extend[school.Teacher, core.ID, []school.Class](p.Teachers, "classes",
		resource.Fetch[core.ID, []school.Class](idPath(endpoint.TeacherClasses), nil),
		nil,
	)
	p.TeacherTimetable = resource.Extend[school.Teacher, core.ID, []school.TimetableEntry](p.Teachers, "timetable",
		resource.Fetch[core.ID, []school.TimetableEntry](idPath(endpoint.TeacherTimetable), nil),
		nil,
	)
	p.TeacherPhoto = resource.Extend[school.Teacher, resource.Upload, school.Teacher](p.Teachers, "uploadPhoto",
		resource.PostFile[school.Teacher](endpoint.TeacherPhoto),
		resource.Replace[school.Teacher],
	).WithMessages("Teacher photo uploaded successfully", "Failed to upload teacher photo")

	p.SubjectTeachers = resource.Extend[school.Subject, core.ID, []school.Teacher](p.Subjects, "teachers",
		resource.Fetch[core.ID, []school.Teacher](idPath(endpoint.SubjectTeachers), nil),
		nil,
	)
	p.SubjectClasses = resource.Extend[school.Subject, core.ID, []school.Class](p.Subjects, "classes",
		resource.Fetch[core.ID, []school.Class](idPath(endpoint.SubjectClasses), nil),
		nil,
	)
	p.SubjectCurriculum = resource.Extend[school.Subject, core.ID, []school.CurriculumItem](p.Subjects, "curriculum",
		resource.Fetch[core.ID, []school.CurriculumItem](idPath(endpoint.SubjectCurriculum), nil),
		nil,
	)

	p.AnnouncementTogglePin = resource.Extend[school.Announcement, core.ID, school.Announcement](p.Announcements, "togglePin",
		resource.Action[school.Announcement](endpoint.AnnouncementTogglePin),
		resource.Replace[school.Announcement],
	).WithMessages("Announcement pin updated", "Failed to update announcement pin")
	p.StudentPhoto = resource.Extend[school.Student, resource.Upload, school.Student](p.Students, "uploadPhoto",
		resource.PostFile[school.Student](endpoint.StudentPhoto),
		resource.Replace[school.Student],
	).WithMessages("Student photo uploaded successfully", "Failed to upload student photo")
	p.SchoolLogo = resource.Extend[school.School, resource.Upload, school.School](p.Schools, "uploadLogo",
		resource.PostFile[school.School](endpoint.SchoolLogo),
		resource.Replace[school.School],
	).WithMessages("School logo uploaded successfully", "Failed to upload school logo")
}

func (p *Portal) Config() *core.Config { return p.conf }

func (p *Portal) Logger() core.Logger { return p.logger }

// Manager returns the type-erased manager of resource (eg. "exam-results").
func (p *Portal) Manager(name string) (resource.Untyped, bool) {
	m, ok := p.managers[name]
	return m, ok
}

// Resources returns the names of every managed resource, sorted.
func (p *Portal) Resources() []string {
	names := make([]string, 0, len(p.managers))
	for name := range p.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Identity returns the authenticated identity, if any.
func (p *Portal) Identity() (user.Identity, bool) {
	st := p.Session.Snapshot()
	if !st.Authenticated || st.Identity == nil {
		return user.Identity{}, false
	}
	return *st.Identity, true
}

// Close releases the storage.
func (p *Portal) Close() error {
	return p.store.Close()
}
