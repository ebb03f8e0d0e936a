package school

import (
	"github.com/trezcool/masomo-portal/core"
)

// Drafts are the uncommitted edit state of a create/edit dialog.
// They are validated client-side, then sent as the create/update payload.

type SchoolDraft struct {
	Name    string `json:"name" validate:"required,notblank"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

func (d *SchoolDraft) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Email = core.CleanString(d.Email, true /* lower */)
}

type AcademicYearDraft struct {
	Name      string `json:"name" validate:"required,notblank"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsCurrent bool   `json:"is_current"`
}

func (d *AcademicYearDraft) Clean() {
	d.Name = core.CleanString(d.Name)
}

type ClassDraft struct {
	Name         string    `json:"name" validate:"required,notblank"`
	Capacity     int       `json:"capacity" validate:"gte=1,lte=500"`
	AcademicYear core.ID   `json:"academic_year" validate:"required"`
	Teachers     []core.ID `json:"teachers,omitempty"`
}

func (d *ClassDraft) Clean() {
	d.Name = core.CleanString(d.Name)
}

type SubjectDraft struct {
	Name        string    `json:"name" validate:"required,notblank"`
	Code        string    `json:"code" validate:"required,alphanum_,max=20"`
	Description string    `json:"description,omitempty"`
	Teachers    []core.ID `json:"teachers,omitempty"`
}

func (d *SubjectDraft) Clean() {
	d.Name = core.CleanString(d.Name)
	d.Code = core.CleanString(d.Code)
}

type TeacherDraft struct {
	FirstName string    `json:"first_name" validate:"required,notblank"`
	LastName  string    `json:"last_name" validate:"required,notblank"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty"`
	Subjects  []core.ID `json:"subjects,omitempty"`
}

func (d *TeacherDraft) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.Email = core.CleanString(d.Email, true /* lower */)
}

type StudentDraft struct {
	FirstName       string  `json:"first_name" validate:"required,notblank"`
	LastName        string  `json:"last_name" validate:"required,notblank"`
	Email           string  `json:"email,omitempty" validate:"omitempty,email"`
	AdmissionNumber string  `json:"admission_number" validate:"required,notblank"`
	Class           core.ID `json:"class,omitempty"`
	DateOfBirth     string  `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender          string  `json:"gender,omitempty" validate:"omitempty,oneof=M F"`
}

func (d *StudentDraft) Clean() {
	d.FirstName = core.CleanString(d.FirstName)
	d.LastName = core.CleanString(d.LastName)
	d.Email = core.CleanString(d.Email, true /* lower */)
	d.AdmissionNumber = core.CleanString(d.AdmissionNumber)
}

type AttendanceDraft struct {
	Student core.ID `json:"student" validate:"required"`
	Class   core.ID `json:"class,omitempty"`
	Date    string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status  string  `json:"status" validate:"required,oneof=present absent late excused"`
	Remarks string  `json:"remarks,omitempty"`
}

func (d *AttendanceDraft) Clean() {
	d.Status = core.CleanString(d.Status, true /* lower */)
}

type ExamDraft struct {
	Name       string  `json:"name" validate:"required,notblank"`
	Subject    core.ID `json:"subject" validate:"required"`
	Class      core.ID `json:"class" validate:"required"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	TotalMarks float64 `json:"total_marks" validate:"gt=0"`
}

func (d *ExamDraft) Clean() {
	d.Name = core.CleanString(d.Name)
}

type ExamResultDraft struct {
	Exam          core.ID `json:"exam" validate:"required"`
	Student       core.ID `json:"student" validate:"required"`
	MarksObtained float64 `json:"marks_obtained" validate:"gte=0"`
	Remarks       string  `json:"remarks,omitempty"`
}

func (d *ExamResultDraft) Clean() {
	d.Remarks = core.CleanString(d.Remarks)
}

type AnnouncementDraft struct {
	Title    string `json:"title" validate:"required,notblank,max=200"`
	Content  string `json:"content" validate:"required,notblank"`
	Audience string `json:"audience,omitempty" validate:"omitempty,oneof=all teachers students"`
	IsPinned bool   `json:"is_pinned"`
}

func (d *AnnouncementDraft) Clean() {
	d.Title = core.CleanString(d.Title)
	d.Audience = core.CleanString(d.Audience, true /* lower */)
}

// Cleaner is implemented by the drafts that normalize their input before validation.
type Cleaner interface {
	Clean()
}

// Form is the transient state of one create/edit dialog: the draft and its validation errors.
// It belongs to the dialog and is thrown away on submit or cancel.
type Form[D any] struct {
	Draft  D
	Errors map[string][]string
}

// NewForm opens a form on the provided draft (a zero draft for "create").
func NewForm[D any](draft D) *Form[D] {
	return &Form[D]{Draft: draft}
}

// Validate cleans and validates the draft, keeping the field errors on the form.
// It reports whether the draft can be submitted.
func (f *Form[D]) Validate(v *core.Validator) bool {
	if c, ok := interface{}(&f.Draft).(Cleaner); ok {
		c.Clean()
	}
	f.Errors = nil
	if err := v.Struct(f.Draft); err != nil {
		f.Errors = core.Normalize(err).FieldErrors()
		return false
	}
	return true
}

// Fail records a submission failure (server field errors or a detail) on the form.
func (f *Form[D]) Fail(err error) {
	if err == nil {
		return
	}
	f.Errors = core.Normalize(err).FieldErrors()
}

// FieldError returns the first error for field, if any.
func (f *Form[D]) FieldError(field string) string {
	if msgs := f.Errors[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (f *Form[D]) Valid() bool { return len(f.Errors) == 0 }
