// Package school holds the client-side mirrors of the backend records and the drafts used to edit them.
package school

import "github.com/trezcool/masomo-portal/core"

// Attendance statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

// Announcement audiences
const (
	AudienceAll      = "all"
	AudienceTeachers = "teachers"
	AudienceStudents = "students"
)

type School struct {
	ID      core.ID `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Email   string  `json:"email,omitempty"`
	Logo    string  `json:"logo,omitempty"`
}

func (s School) RecordID() core.ID { return s.ID }

type AcademicYear struct {
	ID        core.ID `json:"id"`
	Name      string  `json:"name"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	IsCurrent bool    `json:"is_current"`
	School    core.ID `json:"school,omitempty"`
}

func (y AcademicYear) RecordID() core.ID { return y.ID }

type Class struct {
	ID           core.ID   `json:"id"`
	Name         string    `json:"name"`
	Capacity     int       `json:"capacity"`
	AcademicYear core.ID   `json:"academic_year"`
	Teachers     []core.ID `json:"teachers"`
	School       core.ID   `json:"school,omitempty"`
}

func (c Class) RecordID() core.ID { return c.ID }

type Subject struct {
	ID          core.ID   `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Teachers    []core.ID `json:"teachers,omitempty"`
	Classes     []core.ID `json:"classes,omitempty"`
}

func (s Subject) RecordID() core.ID { return s.ID }

type Teacher struct {
	ID        core.ID   `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subjects  []core.ID `json:"subjects,omitempty"`
	Photo     string    `json:"photo,omitempty"`
}

func (t Teacher) RecordID() core.ID { return t.ID }

func (t Teacher) FullName() string { return fullName(t.FirstName, t.LastName) }

type Student struct {
	ID              core.ID `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
	Email           string  `json:"email,omitempty"`
	AdmissionNumber string  `json:"admission_number"`
	Class           core.ID `json:"class,omitempty"`
	DateOfBirth     string  `json:"date_of_birth,omitempty"`
	Gender          string  `json:"gender,omitempty"`
	Photo           string  `json:"photo,omitempty"`
}

func (s Student) RecordID() core.ID { return s.ID }

func (s Student) FullName() string { return fullName(s.FirstName, s.LastName) }

type Attendance struct {
	ID      core.ID `json:"id"`
	Student core.ID `json:"student"`
	Class   core.ID `json:"class,omitempty"`
	Date    string  `json:"date"`
	Status  string  `json:"status"`
	Remarks string  `json:"remarks,omitempty"`
}

func (a Attendance) RecordID() core.ID { return a.ID }

type Exam struct {
	ID           core.ID `json:"id"`
	Name         string  `json:"name"`
	Subject      core.ID `json:"subject"`
	Class        core.ID `json:"class"`
	Date         string  `json:"date"`
	TotalMarks   float64 `json:"total_marks"`
	AcademicYear core.ID `json:"academic_year,omitempty"`
}

func (e Exam) RecordID() core.ID { return e.ID }

type ExamResult struct {
	ID            core.ID `json:"id"`
	Exam          core.ID `json:"exam"`
	Student       core.ID `json:"student"`
	MarksObtained float64 `json:"marks_obtained"`
	Grade         string  `json:"grade,omitempty"`
	Remarks       string  `json:"remarks,omitempty"`
}

func (r ExamResult) RecordID() core.ID { return r.ID }

type Announcement struct {
	ID        core.ID `json:"id"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Audience  string  `json:"audience,omitempty"`
	IsPinned  bool    `json:"is_pinned"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func (a Announcement) RecordID() core.ID { return a.ID }

// Resource-specific read models

// AttendanceStats is one month of attendance counters.
type AttendanceStats struct {
	Month   int     `json:"month"`
	Year    int     `json:"year"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Late    int     `json:"late"`
	Excused int     `json:"excused"`
	Rate    float64 `json:"rate"`
}

// ResultsSummary aggregates exam results.
type ResultsSummary struct {
	TotalResults int     `json:"total_results"`
	Average      float64 `json:"average"`
	Highest      float64 `json:"highest"`
	Lowest       float64 `json:"lowest"`
	PassRate     float64 `json:"pass_rate"`
}

// TimetableEntry is one teaching slot.
type TimetableEntry struct {
	Day       string  `json:"day"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Class     core.ID `json:"class"`
	Subject   core.ID `json:"subject"`
}

// CurriculumItem is one topic of a subject's curriculum.
type CurriculumItem struct {
	Topic       string `json:"topic"`
	Description string `json:"description,omitempty"`
	Week        int    `json:"week,omitempty"`
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
