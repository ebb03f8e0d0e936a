package portal_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/trezcool/masomo-portal/apps/mockapi/echo"
	"github.com/trezcool/masomo-portal/apps/portal"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/resource"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/httpclient"
	"github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/services/notify"
	"github.com/trezcool/masomo-portal/storage"
	"github.com/trezcool/masomo-portal/storage/inmem"
	"github.com/trezcool/masomo-portal/tests"
)

func login(t *testing.T, p *testutil.Portal, email string) {
	require.NoError(t, p.Session.Login(context.Background(), user.Credentials{Email: email, Password: testutil.Password}))
}

func TestPortal_New(t *testing.T) {
	api := testutil.StartMockAPI(t)
	p := testutil.NewPortal(t, api)

	assert.Equal(t, []string{
		"academic-years", "announcements", "attendance", "classes", "exam-results",
		"exams", "schools", "students", "subjects", "teachers",
	}, p.Resources())

	m, ok := p.Manager("exam-results")
	require.True(t, ok)
	assert.Equal(t, "Exam result", m.Label())
	_, ok = p.Manager("parents")
	assert.False(t, ok)

	assert.True(t, p.Session.Snapshot().Anonymous())
	_, ok = p.Identity()
	assert.False(t, ok)

	for _, ext := range []string{"byDate", "byStudent", "monthlyStats"} {
		assert.Contains(t, p.Attendance.Snapshot().Extras, ext)
	}
}

func TestPortal_Dashboard(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Neema Achieng", "teacher@school.test", user.RoleTeacher)
	db := api.DB()
	db.Insert("classes", echoapi.Row{"name": "Form 1A", "capacity": 40, "academic_year": 1})
	db.Insert("attendance", echoapi.Row{"student": 1, "class": 1, "date": "2024-03-04", "status": "present"})
	db.Insert("exam-results", echoapi.Row{"exam": 1, "student": 1, "marks_obtained": 80})

	p := testutil.NewPortal(t, api)

	_, err := p.Dashboard(ctx)
	require.Error(t, err)
	assert.True(t, core.IsUnauthorized(err))

	login(t, p, "teacher@school.test")
	identity, ok := p.Identity()
	require.True(t, ok)
	assert.Equal(t, "Neema Achieng", identity.DisplayName())

	d, err := p.Dashboard(ctx)
	require.NoError(t, err)
	if assert.Len(t, d.Classes, 1) {
		assert.Equal(t, core.ID("1"), d.Classes[0].ID)
		assert.Equal(t, 40, d.Classes[0].Capacity)
	}
	assert.Len(t, d.Attendance, 1)
	assert.Equal(t, school.ResultsSummary{TotalResults: 1, Average: 80, Highest: 80, Lowest: 80, PassRate: 100}, d.Results)

	assert.False(t, p.Classes.Snapshot().Loading)
	sum, ok := p.ResultsSummary.Result()
	assert.True(t, ok)
	assert.Equal(t, d.Results, sum)
}

func TestPortal_crud(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Grace Admin", "admin@school.test", user.RoleAdmin)
	p := testutil.NewPortal(t, api)
	login(t, p, "admin@school.test")

	form := school.NewForm(school.ClassDraft{Name: "  Form 1A ", Capacity: 40})
	require.False(t, form.Validate(core.NewValidator()))
	assert.Equal(t, "this field is required", form.FieldError("academic_year"))

	form.Draft.AcademicYear = "1"
	require.True(t, form.Validate(core.NewValidator()))
	created, err := p.Classes.Create(ctx, form.Draft)
	require.NoError(t, err)
	assert.Equal(t, "Form 1A", created.Name)

	last, _ := p.Recorder.Last()
	assert.Equal(t, "Class created successfully", last.Message)
	assert.Equal(t, notifysvc.Success, last.Severity)

	// server-side field errors
	_, err = p.Classes.Create(ctx, school.ClassDraft{Capacity: 10})
	require.Error(t, err)
	form.Fail(err)
	assert.Equal(t, "This field is required.", form.FieldError("name"))
	last, _ = p.Recorder.Last()
	assert.Equal(t, notifysvc.Error, last.Severity)
	assert.Equal(t, "Failed to create class", last.Message)

	updated, err := p.Classes.Update(ctx, created.ID, school.ClassDraft{Name: "Form 1 Alpha", Capacity: 42, AcademicYear: "1"})
	require.NoError(t, err)
	assert.Equal(t, 42, updated.Capacity)
	items := p.Classes.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "Form 1 Alpha", items[0].Name)

	require.NoError(t, p.Classes.Delete(ctx, created.ID))
	assert.Empty(t, p.Classes.Snapshot().Items)

	err = p.Classes.Delete(ctx, created.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestPortal_extensions(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Grace Admin", "admin@school.test", user.RoleAdmin)
	api.DB().Insert("announcements", echoapi.Row{"title": "Closing day", "content": "Friday", "is_pinned": false})
	api.DB().Insert("students", echoapi.Row{"first_name": "Amani", "last_name": "Juma", "admission_number": "A1"})

	p := testutil.NewPortal(t, api)
	login(t, p, "admin@school.test")

	_, err := p.Announcements.List(ctx)
	require.NoError(t, err)
	ann, err := p.AnnouncementTogglePin.Run(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ann.IsPinned)
	assert.True(t, p.Announcements.Snapshot().Items[0].IsPinned)

	_, err = p.Students.List(ctx)
	require.NoError(t, err)
	_, err = p.StudentPhoto.Run(ctx, resource.Upload{ID: "1", File: httpclient.File{Param: "photo", Name: "amani.png", Content: []byte("png")}})
	require.NoError(t, err)
	st, ok := p.Students.Find("1")
	require.True(t, ok)
	assert.Equal(t, "/media/students/amani.png", st.Photo)
	last, _ := p.Recorder.Last()
	assert.Equal(t, "Student photo uploaded successfully", last.Message)

	_, err = p.TeacherClasses.Run(ctx, "42")
	assert.True(t, core.IsNotFound(err))
	assert.NotNil(t, p.Teachers.Snapshot().Extras["classes"].Err)
}

func TestPortal_refreshOnExpiredAccess(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Grace Admin", "admin@school.test", user.RoleAdmin)
	p := testutil.NewPortal(t, api)
	login(t, p, "admin@school.test")

	// restart on a revoked access credential; the refresh credential is still good
	require.NoError(t, p.Store.Set(ctx, storage.KeyAccess, "revoked"))
	require.NoError(t, p.Session.Hydrate(ctx))
	require.Equal(t, "revoked", p.Session.AccessToken())

	_, err := p.Schools.List(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "revoked", p.Session.AccessToken())
	access, _, _ := p.Store.Get(ctx, storage.KeyAccess)
	assert.Equal(t, p.Session.AccessToken(), access)

	// both revoked: the session ends
	require.NoError(t, p.Store.Set(ctx, storage.KeyAccess, "revoked"))
	require.NoError(t, p.Store.Set(ctx, storage.KeyRefresh, "revoked"))
	require.NoError(t, p.Session.Hydrate(ctx))

	_, err = p.Schools.List(ctx)
	require.Error(t, err)
	st := p.Session.Snapshot()
	assert.True(t, st.Anonymous())
	assert.Equal(t, user.RoleAdmin, st.Role)
	assert.Equal(t, map[string][]string{core.NonFieldErrorsKey: {core.ErrSessionExpired.Error()}}, st.Err)
}

func TestPortal_withoutCredentials(t *testing.T) {
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Grace Admin", "admin@school.test", user.RoleAdmin)

	conf := testutil.Config(api.URL)
	conf.API.AttachCredentials = false
	p, err := portal.New(context.Background(), conf, portal.Deps{Logger: logsvc.NewDiscardLogger(), Store: inmemstore.New()})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Session.Login(context.Background(), user.Credentials{Email: "admin@school.test", Password: testutil.Password}))
	_, err = p.Schools.List(context.Background())
	assert.True(t, core.IsUnauthorized(err))
}

func TestPortal_importExport(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Grace Admin", "admin@school.test", user.RoleAdmin)
	api.DB().Insert("students", echoapi.Row{"first_name": "Zawadi", "last_name": "Mwangi", "admission_number": "ADM-009"})
	p := testutil.NewPortal(t, api)
	login(t, p, "admin@school.test")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Admission Number", "First Name", "Last Name"},
		{"ADM-001", "Amani", "Juma"},
		{"ADM-009", "Zawadi", "Mwangi"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rep, err := p.ImportStudents(ctx, buf, "3")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Imported)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, 3, rep.Errors[0].Row)
	assert.Equal(t, []string{"student with this admission number already exists."}, rep.Errors[0].Fields["admission_number"])

	items := p.Students.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, core.ID("3"), items[0].Class)

	var out bytes.Buffer
	require.NoError(t, p.Export(&out, "students"))
	wb, err := excelize.OpenReader(&out)
	require.NoError(t, err)
	defer wb.Close()
	got, err := wb.GetRows("students")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.EqualError(t, p.Export(&out, "parents"), `unknown resource "parents"`)
}

func TestPortal_logout(t *testing.T) {
	ctx := context.Background()
	api := testutil.StartMockAPI(t)
	testutil.CreateAccount(t, api, "Amani Juma", "student@school.test", user.RoleStudent)
	p := testutil.NewPortal(t, api)
	login(t, p, "student@school.test")
	assert.Positive(t, p.Store.Len())

	require.NoError(t, p.Session.Logout(ctx))
	assert.Equal(t, 0, p.Store.Len())
	_, err := p.Announcements.List(ctx)
	assert.True(t, core.IsUnauthorized(err))
}
