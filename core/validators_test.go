package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleDraft struct {
	Name   string `json:"name" validate:"required,notblank"`
	Handle string `json:"handle" validate:"omitempty,alphanum_"`
	Email  string `json:"email" validate:"required_with=Name"`
}

func TestValidator_Struct(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name  string
		draft sampleDraft
		want  map[string][]string
	}{
		{
			name:  "valid",
			draft: sampleDraft{Name: "Grade 5A", Handle: "grade_5a", Email: "x@y.z"},
		},
		{
			name:  "missing",
			draft: sampleDraft{},
			want:  map[string][]string{"name": {"this field is required"}},
		},
		{
			name:  "blank",
			draft: sampleDraft{Name: "   ", Email: "x@y.z"},
			want:  map[string][]string{"name": {"this field cannot be blank"}},
		},
		{
			name:  "custom tags",
			draft: sampleDraft{Name: "Grade 5A", Handle: "grade-5a!"},
			want: map[string][]string{
				"handle": {"only alphanumeric characters and underscores are allowed"},
				"email":  {"this field is required"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.draft)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			vErr, ok := err.(*ValidationError)
			if assert.True(t, ok, "want *ValidationError, got %T", err) {
				assert.Equal(t, tt.want, vErr.FieldErrors())
			}
		})
	}
}

func TestID_UnmarshalJSON(t *testing.T) {
	var rec struct {
		ID     ID `json:"id"`
		School ID `json:"school"`
		Year   ID `json:"academic_year"`
	}
	err := json.Unmarshal([]byte(`{"id": 12, "school": "c1", "academic_year": null}`), &rec)
	assert.NoError(t, err)
	assert.Equal(t, ID("12"), rec.ID)
	assert.Equal(t, ID("c1"), rec.School)
	assert.True(t, rec.Year.IsZero())

	data, err := json.Marshal(rec)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id": "12", "school": "c1", "academic_year": ""}`, string(data))

	assert.Equal(t, ID("7"), IDOf(float64(7)))
	assert.Equal(t, ID("c1"), IDOf("c1"))
	assert.Equal(t, ID(""), IDOf(nil))
}
