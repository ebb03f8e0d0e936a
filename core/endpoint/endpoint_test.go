package endpoint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollection(t *testing.T) {
	s := Collection("academic-years")

	assert.Equal(t, "academic-years", s.Resource)
	assert.Equal(t, "/academic-years/", s.List)
	assert.Equal(t, "/academic-years/", s.Create)
	assert.Equal(t, "/academic-years/42/", s.Update("42"))
	assert.Equal(t, "/academic-years/42/", s.Delete("42"))
}

func TestSet_Path(t *testing.T) {
	tests := []struct {
		name       string
		op         string
		id         string
		wantPath   string
		wantMethod string
	}{
		{name: "list", op: OpList, wantPath: "/classes/", wantMethod: http.MethodGet},
		{name: "list ignores id", op: OpList, id: "c1", wantPath: "/classes/", wantMethod: http.MethodGet},
		{name: "create", op: OpCreate, wantPath: "/classes/", wantMethod: http.MethodPost},
		{name: "update", op: OpUpdate, id: "c1", wantPath: "/classes/c1/", wantMethod: http.MethodPut},
		{name: "delete", op: OpDelete, id: "c1", wantPath: "/classes/c1/", wantMethod: http.MethodDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantPath, Classes.Path(tt.op, tt.id))
			assert.Equal(t, tt.wantMethod, Classes.Method(tt.op))
		})
	}

	assert.NotPanics(t, func() { assert.Empty(t, Classes.Path("archive", "c1")) })
}

func TestSet_UpdateMethod(t *testing.T) {
	s := Collection("attendance")
	s.UpdateMethod = http.MethodPatch
	assert.Equal(t, http.MethodPatch, s.Method(OpUpdate))

	assert.Equal(t, http.MethodPut, Set{}.Method(OpUpdate))
}

func TestLookup(t *testing.T) {
	for _, name := range []string{
		"schools", "academic-years", "classes", "subjects", "teachers",
		"students", "attendance", "exams", "exam-results", "announcements",
	} {
		s, ok := Lookup(name)
		if assert.True(t, ok, name) {
			assert.Equal(t, "/"+name+"/", s.List)
		}
	}

	_, ok := Lookup("grades")
	assert.False(t, ok)
	assert.Len(t, All(), 10)
	assert.Equal(t, "academic-years", All()[0].Resource)
}

func TestResourceSpecificPaths(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{AttendanceByDate, "/attendance/by_date/"},
		{AttendanceByStudent("s1"), "/attendance/by_student/s1/"},
		{AttendanceMonthlyStats, "/attendance/monthly_stats/"},
		{ExamResultsSummary, "/exam-results/summary/"},
		{ExamResultsByClass("c1"), "/exam-results/by_class/c1/"},
		{TeacherClasses("t1"), "/teachers/t1/classes/"},
		{TeacherTimetable("t1"), "/teachers/t1/timetable/"},
		{SubjectTeachers("m1"), "/subjects/m1/teachers/"},
		{SubjectClasses("m1"), "/subjects/m1/classes/"},
		{SubjectCurriculum("m1"), "/subjects/m1/curriculum/"},
		{AnnouncementTogglePin("a1"), "/announcements/a1/toggle_pin/"},
		{StudentPhoto("s1"), "/students/s1/upload_photo/"},
		{TeacherPhoto("t1"), "/teachers/t1/upload_photo/"},
		{SchoolLogo("1"), "/schools/1/upload_logo/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}
