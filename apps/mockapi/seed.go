package main

import (
	echoapi "github.com/trezcool/masomo-portal/apps/mockapi/echo"
	"github.com/trezcool/masomo-portal/core/user"
)

// seed loads one school with a few accounts & records, all accounts sharing pwd.
func seed(db *echoapi.DB, pwd string) error {
	accounts := []echoapi.Account{
		{Name: "Grace Admin", Email: "admin@masomo.test", Role: user.RoleAdmin, School: "1"},
		{Name: "Neema Achieng", Email: "teacher@masomo.test", Role: user.RoleTeacher, School: "1"},
		{Name: "Amani Juma", Email: "student@masomo.test", Role: user.RoleStudent, School: "1"},
	}
	for _, acc := range accounts {
		if _, err := db.AddAccount(acc, pwd); err != nil {
			return err
		}
	}

	db.Insert("schools", echoapi.Row{"name": "Masomo Secondary School", "address": "Nairobi", "email": "info@masomo.test"})
	db.Insert("academic-years", echoapi.Row{"name": "2024", "start_date": "2024-01-08", "end_date": "2024-11-29", "is_current": true, "school": 1})
	db.Insert("teachers", echoapi.Row{"first_name": "Neema", "last_name": "Achieng", "email": "teacher@masomo.test", "subjects": []interface{}{1}})
	db.Insert("subjects", echoapi.Row{"name": "Mathematics", "code": "MATH", "teachers": []interface{}{1}, "classes": []interface{}{1, 2}})
	db.Insert("classes", echoapi.Row{"name": "Form 1A", "capacity": 40, "academic_year": 1, "teachers": []interface{}{1}, "school": 1})
	db.Insert("classes", echoapi.Row{"name": "Form 1B", "capacity": 38, "academic_year": 1, "teachers": []interface{}{}, "school": 1})
	db.Insert("students", echoapi.Row{"first_name": "Amani", "last_name": "Juma", "admission_number": "ADM-001", "class": 1, "gender": "F"})
	db.Insert("students", echoapi.Row{"first_name": "Baraka", "last_name": "Kamau", "admission_number": "ADM-002", "class": 1, "gender": "M"})
	db.Insert("exams", echoapi.Row{"name": "Midterm", "subject": 1, "class": 1, "date": "2024-03-01", "total_marks": 100, "academic_year": 1})
	db.Insert("exam-results", echoapi.Row{"exam": 1, "student": 1, "marks_obtained": 78, "grade": "B+"})
	db.Insert("exam-results", echoapi.Row{"exam": 1, "student": 2, "marks_obtained": 64, "grade": "B-"})
	db.Insert("attendance", echoapi.Row{"student": 1, "class": 1, "date": "2024-03-04", "status": "present"})
	db.Insert("attendance", echoapi.Row{"student": 2, "class": 1, "date": "2024-03-04", "status": "late"})
	db.Insert("announcements", echoapi.Row{"title": "Welcome back", "content": "Term one starts on Monday.", "audience": "all", "is_pinned": true})
	db.Insert("timetable", echoapi.Row{"teacher": 1, "day": "monday", "start_time": "08:00", "end_time": "08:40", "class": 1, "subject": 1})
	db.Insert("curriculum", echoapi.Row{"subject": 1, "topic": "Algebra", "description": "Linear equations", "week": 1})
	return nil
}
