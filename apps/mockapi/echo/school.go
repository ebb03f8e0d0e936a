package echoapi

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
)

const (
	defaultPageSize = 50
	requiredText    = "This field is required."

	tableTimetable  = "timetable"
	tableCurriculum = "curriculum"
)

type collection struct {
	name     string
	label    string
	required []string
	unique   []string
	writers  []string
	defaults func(Row)
}

var (
	adminOnly      = []string{user.RoleAdmin}
	adminOrTeacher = []string{user.RoleAdmin, user.RoleTeacher}

	collections = []collection{
		{name: "schools", label: "school", required: []string{"name"}, writers: adminOnly},
		{name: "academic-years", label: "academic year", required: []string{"name", "start_date", "end_date"}, writers: adminOnly},
		{name: "classes", label: "class", required: []string{"name", "academic_year"}, writers: adminOnly},
		{name: "subjects", label: "subject", required: []string{"name", "code"}, unique: []string{"code"}, writers: adminOnly},
		{name: "teachers", label: "teacher", required: []string{"first_name", "last_name", "email"}, unique: []string{"email"}, writers: adminOnly},
		{
			name: "students", label: "student", required: []string{"first_name", "last_name", "admission_number"},
			unique: []string{"admission_number"}, writers: adminOnly,
		},
		{name: "attendance", label: "attendance", required: []string{"student", "date", "status"}, writers: adminOrTeacher},
		{name: "exams", label: "exam", required: []string{"name", "subject", "class", "date"}, writers: adminOrTeacher},
		{name: "exam-results", label: "exam result", required: []string{"exam", "student"}, writers: adminOrTeacher},
		{
			name: "announcements", label: "announcement", required: []string{"title", "content"}, writers: adminOrTeacher,
			defaults: func(r Row) {
				if _, ok := r["audience"]; !ok {
					r["audience"] = school.AudienceAll
				}
				if _, ok := r["is_pinned"]; !ok {
					r["is_pinned"] = false
				}
				r["created_at"] = time.Now().UTC().Format(time.RFC3339)
			},
		},
	}
)

type schoolApi struct {
	s  *server
	db *DB
}

// registerSchoolAPI registers the resource routes; every one of them requires an access token.
func registerSchoolAPI(e *echo.Echo, s *server) {
	api := schoolApi{s: s, db: s.db}
	jwt := s.jwtMiddleware

	// resource-specific reads
	e.GET("/attendance/by_date", api.attendanceByDate, jwt)
	e.GET("/attendance/by_student/:id", api.attendanceByStudent, jwt)
	e.GET("/attendance/monthly_stats", api.attendanceMonthlyStats, jwt)
	e.GET("/exam-results/summary", api.resultsSummary, jwt)
	e.GET("/exam-results/by_class/:id", api.resultsByClass, jwt)
	e.GET("/teachers/:id/classes", api.teacherClasses, jwt)
	e.GET("/teachers/:id/timetable", api.teacherTimetable, jwt)
	e.GET("/subjects/:id/teachers", api.subjectTeachers, jwt)
	e.GET("/subjects/:id/classes", api.subjectClasses, jwt)
	e.GET("/subjects/:id/curriculum", api.subjectCurriculum, jwt)
	e.POST("/announcements/:id/toggle_pin", api.togglePin, jwt, rolesMiddleware(adminOrTeacher...))

	// uploads
	e.POST("/students/:id/upload_photo", api.upload("students", "photo"), jwt, rolesMiddleware(adminOnly...))
	e.POST("/teachers/:id/upload_photo", api.upload("teachers", "photo"), jwt, rolesMiddleware(adminOnly...))
	e.POST("/schools/:id/upload_logo", api.upload("schools", "logo"), jwt, rolesMiddleware(adminOnly...))

	for _, c := range collections {
		c := c
		write := rolesMiddleware(c.writers...)
		e.GET("/"+c.name, api.list(c), jwt)
		e.POST("/"+c.name, api.create(c), jwt, write)
		e.GET("/"+c.name+"/:id", api.retrieve(c), jwt)
		e.PUT("/"+c.name+"/:id", api.update(c), jwt, write)
		e.PATCH("/"+c.name+"/:id", api.update(c), jwt, write)
		e.DELETE("/"+c.name+"/:id", api.destroy(c), jwt, write)
	}
}

// CRUD

func (api *schoolApi) list(c collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rows := api.db.All(c.name)
		if ctx.QueryParam("page") == "" {
			return ctx.JSON(http.StatusOK, rows)
		}
		return ctx.JSON(http.StatusOK, paginate(ctx, rows))
	}
}

func (api *schoolApi) create(c collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		row, err := bindRow(ctx)
		if err != nil {
			return err
		}
		if err := api.check(c, row, 0); err != nil {
			return err
		}
		if c.defaults != nil {
			c.defaults(row)
		}
		return ctx.JSON(http.StatusCreated, api.db.Insert(c.name, row))
	}
}

func (api *schoolApi) retrieve(c collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		row, _, err := api.object(ctx, c.name)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, row)
	}
}

func (api *schoolApi) update(c collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cur, id, err := api.object(ctx, c.name)
		if err != nil {
			return err
		}
		fields, err := bindRow(ctx)
		if err != nil {
			return err
		}
		merged := cur.copy()
		for k, v := range fields {
			merged[k] = v
		}
		if err := api.check(c, merged, id); err != nil {
			return err
		}
		row, ok := api.db.Update(c.name, id, fields)
		if !ok {
			return errNotFound
		}
		return ctx.JSON(http.StatusOK, row)
	}
}

func (api *schoolApi) destroy(c collection) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		_, id, err := api.object(ctx, c.name)
		if err != nil {
			return err
		}
		api.db.Delete(c.name, id)
		return ctx.NoContent(http.StatusNoContent)
	}
}

// check applies the required & unique constraints of c to row; self is the id of the updated row.
func (api *schoolApi) check(c collection, row Row, self int) error {
	flds := fieldErrors{}
	for _, field := range c.required {
		if blankValue(row[field]) {
			flds[field] = []string{requiredText}
		}
	}
	for _, field := range c.unique {
		val := fmt.Sprint(row[field])
		if blankValue(row[field]) {
			continue
		}
		dups := api.db.Filter(c.name, func(r Row) bool {
			return r.ID() != strconv.Itoa(self) && strings.EqualFold(fmt.Sprint(r[field]), val)
		})
		if len(dups) > 0 {
			flds[field] = []string{fmt.Sprintf("%s with this %s already exists.", c.label, strings.ReplaceAll(field, "_", " "))}
		}
	}
	if len(flds) > 0 {
		return flds
	}
	return nil
}

func (api *schoolApi) object(ctx echo.Context, name string) (Row, int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return nil, 0, errNotFound
	}
	row, ok := api.db.Get(name, id)
	if !ok {
		return nil, 0, errNotFound
	}
	return row, id, nil
}

// Resource-specific reads

func (api *schoolApi) attendanceByDate(ctx echo.Context) error {
	date, class := ctx.QueryParam("date"), ctx.QueryParam("class")
	if date == "" {
		return fieldErrors{"date": {requiredText}}
	}
	return ctx.JSON(http.StatusOK, api.db.Filter("attendance", func(r Row) bool {
		return fmt.Sprint(r["date"]) == date && (class == "" || sameID(r["class"], class))
	}))
}

func (api *schoolApi) attendanceByStudent(ctx echo.Context) error {
	if _, _, err := api.object(ctx, "students"); err != nil {
		return err
	}
	id := ctx.Param("id")
	return ctx.JSON(http.StatusOK, api.db.Filter("attendance", func(r Row) bool { return sameID(r["student"], id) }))
}

func (api *schoolApi) attendanceMonthlyStats(ctx echo.Context) error {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if v, err := strconv.Atoi(ctx.QueryParam("year")); err == nil {
		year = v
	}
	if v, err := strconv.Atoi(ctx.QueryParam("month")); err == nil && v >= 1 && v <= 12 {
		month = v
	}
	prefix := fmt.Sprintf("%04d-%02d-", year, month)

	stats := school.AttendanceStats{Year: year, Month: month}
	for _, r := range api.db.Filter("attendance", func(r Row) bool { return strings.HasPrefix(fmt.Sprint(r["date"]), prefix) }) {
		switch r["status"] {
		case school.StatusPresent:
			stats.Present++
		case school.StatusAbsent:
			stats.Absent++
		case school.StatusLate:
			stats.Late++
		case school.StatusExcused:
			stats.Excused++
		}
	}
	if total := stats.Present + stats.Absent + stats.Late + stats.Excused; total > 0 {
		stats.Rate = round2(float64(stats.Present+stats.Late) * 100 / float64(total))
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *schoolApi) resultsSummary(ctx echo.Context) error {
	exam := ctx.QueryParam("exam")
	results := api.db.Filter("exam-results", func(r Row) bool { return exam == "" || sameID(r["exam"], exam) })

	var sum school.ResultsSummary
	passed := 0
	for i, r := range results {
		marks := toFloat(r["marks_obtained"])
		sum.Average += marks
		if i == 0 || marks > sum.Highest {
			sum.Highest = marks
		}
		if i == 0 || marks < sum.Lowest {
			sum.Lowest = marks
		}
		if marks >= api.passMark(r["exam"]) {
			passed++
		}
	}
	if n := len(results); n > 0 {
		sum.TotalResults = n
		sum.Average = round2(sum.Average / float64(n))
		sum.PassRate = round2(float64(passed) * 100 / float64(n))
	}
	return ctx.JSON(http.StatusOK, sum)
}

// passMark is half the total marks of the exam, 50 when unknown.
func (api *schoolApi) passMark(examID interface{}) float64 {
	id, err := strconv.Atoi(core.IDOf(examID).String())
	if err == nil {
		if exam, ok := api.db.Get("exams", id); ok {
			if total := toFloat(exam["total_marks"]); total > 0 {
				return total / 2
			}
		}
	}
	return 50
}

func (api *schoolApi) resultsByClass(ctx echo.Context) error {
	if _, _, err := api.object(ctx, "classes"); err != nil {
		return err
	}
	class := ctx.Param("id")
	students := make(map[string]bool)
	for _, st := range api.db.Filter("students", func(r Row) bool { return sameID(r["class"], class) }) {
		students[st.ID()] = true
	}
	return ctx.JSON(http.StatusOK, api.db.Filter("exam-results", func(r Row) bool {
		return students[core.IDOf(r["student"]).String()]
	}))
}

func (api *schoolApi) teacherClasses(ctx echo.Context) error {
	if _, _, err := api.object(ctx, "teachers"); err != nil {
		return err
	}
	id := ctx.Param("id")
	return ctx.JSON(http.StatusOK, api.db.Filter("classes", func(r Row) bool { return containsID(r["teachers"], id) }))
}

func (api *schoolApi) teacherTimetable(ctx echo.Context) error {
	if _, _, err := api.object(ctx, "teachers"); err != nil {
		return err
	}
	id := ctx.Param("id")
	return ctx.JSON(http.StatusOK, api.db.Filter(tableTimetable, func(r Row) bool { return sameID(r["teacher"], id) }))
}

func (api *schoolApi) subjectTeachers(ctx echo.Context) error {
	subject, _, err := api.object(ctx, "subjects")
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	return ctx.JSON(http.StatusOK, api.db.Filter("teachers", func(r Row) bool {
		return containsID(subject["teachers"], r.ID()) || containsID(r["subjects"], id)
	}))
}

func (api *schoolApi) subjectClasses(ctx echo.Context) error {
	subject, _, err := api.object(ctx, "subjects")
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.db.Filter("classes", func(r Row) bool { return containsID(subject["classes"], r.ID()) }))
}

func (api *schoolApi) subjectCurriculum(ctx echo.Context) error {
	if _, _, err := api.object(ctx, "subjects"); err != nil {
		return err
	}
	id := ctx.Param("id")
	return ctx.JSON(http.StatusOK, api.db.Filter(tableCurriculum, func(r Row) bool { return sameID(r["subject"], id) }))
}

func (api *schoolApi) togglePin(ctx echo.Context) error {
	ann, id, err := api.object(ctx, "announcements")
	if err != nil {
		return err
	}
	pinned, _ := ann["is_pinned"].(bool)
	row, ok := api.db.Update("announcements", id, Row{"is_pinned": !pinned})
	if !ok {
		return errNotFound
	}
	return ctx.JSON(http.StatusOK, row)
}

// upload stores the name of the first uploaded file under field.
func (api *schoolApi) upload(name, field string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		_, id, err := api.object(ctx, name)
		if err != nil {
			return err
		}
		form, err := ctx.MultipartForm()
		if err != nil {
			return fieldErrors{field: {"No file was submitted."}}
		}
		for _, files := range form.File {
			if len(files) == 0 {
				continue
			}
			row, ok := api.db.Update(name, id, Row{field: "/media/" + name + "/" + path.Base(files[0].Filename)})
			if !ok {
				return errNotFound
			}
			return ctx.JSON(http.StatusOK, row)
		}
		return fieldErrors{field: {"No file was submitted."}}
	}
}

// helpers

func bindRow(ctx echo.Context) (Row, error) {
	row := Row{}
	if ctx.Request().Body == nil {
		return row, nil
	}
	dec := json.NewDecoder(ctx.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, &errDetail{Status: http.StatusBadRequest, Detail: "JSON parse error - " + err.Error()}
	}
	for k, v := range row {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				row[k] = i
			} else if f, err := n.Float64(); err == nil {
				row[k] = f
			}
		}
	}
	delete(row, "id")
	return row, nil
}

func paginate(ctx echo.Context, rows []Row) echo.Map {
	page, err := strconv.Atoi(ctx.QueryParam("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(ctx.QueryParam("page_size"))
	if err != nil || size < 1 {
		size = defaultPageSize
	}
	start := (page - 1) * size
	if start > len(rows) {
		start = len(rows)
	}
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}
	var next, prev interface{}
	if end < len(rows) {
		next = fmt.Sprintf("%s?page=%d&page_size=%d", ctx.Path(), page+1, size)
	}
	if page > 1 {
		prev = fmt.Sprintf("%s?page=%d&page_size=%d", ctx.Path(), page-1, size)
	}
	return echo.Map{"count": len(rows), "next": next, "previous": prev, "results": rows[start:end]}
}

func blankValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	return 0
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
