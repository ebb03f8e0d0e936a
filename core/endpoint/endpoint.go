// Package endpoint maps the backend resources and their operations to URL paths.
// Paths are relative to the API base URL, which the HTTP client applies.
package endpoint

import (
	"net/http"
	"sort"
)

// Auth
const (
	AuthJWTCreate  = "/auth/jwt/create"
	AuthMe         = "/auth/users/me"
	AuthJWTRefresh = "/auth/jwt/refresh/"
	Register       = "/register"
)

// Operations
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Set is the endpoint set of one resource collection.
type Set struct {
	Resource     string
	List         string
	Create       string
	Item         func(id string) string
	UpdateMethod string // PUT (default) or PATCH
}

// Collection builds the set of a `/<name>/` collection with `/<name>/<id>/` items.
func Collection(name string) Set {
	base := "/" + name + "/"
	return Set{
		Resource:     name,
		List:         base,
		Create:       base,
		Item:         func(id string) string { return base + id + "/" },
		UpdateMethod: http.MethodPut,
	}
}

func (s Set) Update(id string) string { return s.Item(id) }

func (s Set) Delete(id string) string { return s.Item(id) }

// Sub returns the path of a nested read under an item, eg. `/teachers/<id>/classes/`.
func (s Set) Sub(id, name string) string { return s.Item(id) + name + "/" }

// Action returns the path of a collection-level read, eg. `/attendance/by_date/`.
func (s Set) Action(name string) string { return s.List + name + "/" }

// Path returns the path of op; id is ignored by list and create. An unknown op has no path ("").
func (s Set) Path(op, id string) string {
	switch op {
	case OpList:
		return s.List
	case OpCreate:
		return s.Create
	case OpUpdate:
		return s.Update(id)
	case OpDelete:
		return s.Delete(id)
	}
	return ""
}

// Method returns the HTTP method of op.
func (s Set) Method(op string) string {
	switch op {
	case OpCreate:
		return http.MethodPost
	case OpUpdate:
		if s.UpdateMethod != "" {
			return s.UpdateMethod
		}
		return http.MethodPut
	case OpDelete:
		return http.MethodDelete
	}
	return http.MethodGet
}

// Registry
var (
	Schools       = Collection("schools")
	AcademicYears = Collection("academic-years")
	Classes       = Collection("classes")
	Subjects      = Collection("subjects")
	Teachers      = Collection("teachers")
	Students      = Collection("students")
	Attendance    = Collection("attendance")
	Exams         = Collection("exams")
	ExamResults   = Collection("exam-results")
	Announcements = Collection("announcements")

	registry = map[string]Set{}
)

func init() {
	for _, s := range []Set{
		Schools, AcademicYears, Classes, Subjects, Teachers,
		Students, Attendance, Exams, ExamResults, Announcements,
	} {
		registry[s.Resource] = s
	}
}

// Lookup returns the set registered for resource.
func Lookup(resource string) (Set, bool) {
	s, ok := registry[resource]
	return s, ok
}

// All returns every registered set, sorted by resource name.
func All() []Set {
	sets := make([]Set, 0, len(registry))
	for _, s := range registry {
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Resource < sets[j].Resource })
	return sets
}

// Resource-specific reads
var (
	AttendanceByDate       = Attendance.Action("by_date")
	AttendanceMonthlyStats = Attendance.Action("monthly_stats")
	ExamResultsSummary     = ExamResults.Action("summary")
)

func AttendanceByStudent(studentID string) string {
	return Attendance.Action("by_student") + studentID + "/"
}

func ExamResultsByClass(classID string) string {
	return ExamResults.Action("by_class") + classID + "/"
}

func TeacherClasses(id string) string   { return Teachers.Sub(id, "classes") }
func TeacherTimetable(id string) string { return Teachers.Sub(id, "timetable") }

func SubjectTeachers(id string) string   { return Subjects.Sub(id, "teachers") }
func SubjectClasses(id string) string    { return Subjects.Sub(id, "classes") }
func SubjectCurriculum(id string) string { return Subjects.Sub(id, "curriculum") }

func AnnouncementTogglePin(id string) string { return Announcements.Sub(id, "toggle_pin") }

// Uploads (multipart)

func StudentPhoto(id string) string { return Students.Sub(id, "upload_photo") }
func TeacherPhoto(id string) string { return Teachers.Sub(id, "upload_photo") }
func SchoolLogo(id string) string   { return Schools.Sub(id, "upload_logo") }
