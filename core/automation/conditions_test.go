package automation_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/notification"
)

func TestConditions_Match(t *testing.T) {
	tests := []struct {
		name    string
		conds   automation.Conditions
		payload automation.Payload
		want    bool
	}{
		{name: "no conditions", conds: nil, payload: automation.Payload{}, want: true},
		{name: "unknown key passes", conds: automation.Conditions{"weather": "sunny"}, payload: automation.Payload{}, want: true},
		{name: "daysBefore within", conds: automation.Conditions{"daysBefore": 2}, payload: automation.Payload{"daysBefore": 1}, want: true},
		{name: "daysBefore equal", conds: automation.Conditions{"daysBefore": float64(2)}, payload: automation.Payload{"daysBefore": 2}, want: true},
		{name: "daysBefore too early", conds: automation.Conditions{"daysBefore": 2}, payload: automation.Payload{"daysBefore": 5}, want: false},
		{name: "daysBefore missing field", conds: automation.Conditions{"daysBefore": 2}, payload: automation.Payload{}, want: false},
		{name: "gradeBelow", conds: automation.Conditions{"gradeBelow": 50}, payload: automation.Payload{"grade": 42.5}, want: true},
		{name: "gradeBelow boundary", conds: automation.Conditions{"gradeBelow": 50}, payload: automation.Payload{"grade": 50.0}, want: false},
		{name: "gradeBelow json number", conds: automation.Conditions{"gradeBelow": json.Number("50")}, payload: automation.Payload{"grade": "49"}, want: true},
		{name: "gradeBelow not a number", conds: automation.Conditions{"gradeBelow": 50}, payload: automation.Payload{"grade": "A+"}, want: false},
		{name: "gradeAtLeast", conds: automation.Conditions{"gradeAtLeast": 80}, payload: automation.Payload{"grade": 80}, want: true},
		{name: "classId match", conds: automation.Conditions{"classId": "5A"}, payload: automation.Payload{"classId": "5A"}, want: true},
		{name: "classId mismatch", conds: automation.Conditions{"classId": "5A"}, payload: automation.Payload{"classId": "5B"}, want: false},
		{
			name:    "all must hold",
			conds:   automation.Conditions{"gradeBelow": 50, "classId": "5A"},
			payload: automation.Payload{"grade": 30, "classId": "5B"},
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.conds.Match(tt.payload))
		})
	}
}

func TestInterpolate(t *testing.T) {
	payload := automation.Payload{"title": "Essay", "grade": 12.5, "days": 2, "nothing": nil}

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "no placeholders", want: "no placeholders"},
		{in: "New homework: {{title}}", want: "New homework: Essay"},
		{in: "{{ title }} scored {{grade}}", want: "Essay scored 12.5"},
		{in: "due in {{days}} days", want: "due in 2 days"},
		{in: "[{{missing}}]", want: "[]"},
		{in: "[{{nothing}}]", want: "[]"},
		{in: "{{title}}{{title}}", want: "EssayEssay"},
		{in: "{{ not a key }}", want: "{{ not a key }}"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, automation.Interpolate(tt.in, payload))
		})
	}
}

func TestTemplate_Render(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	tmpl := automation.Template{
		Title:          "Low grade in {{courseName}}",
		Message:        "{{studentName}} got {{grade}}",
		Type:           notification.TypeWarning,
		Priority:       notification.PriorityHigh,
		Category:       notification.CategoryAcademic,
		ActionURL:      "/grades/{{studentId}}",
		ActionText:     "View",
		ExpiresInHours: 48,
	}
	payload := automation.GradeUpdated{StudentID: "s1", StudentName: "Amani", CourseName: "Maths", Grade: 35}.Fields()

	nn := tmpl.Render(payload, now)
	assert.Equal(t, "Low grade in Maths", nn.Title)
	assert.Equal(t, "Amani got 35", nn.Message)
	assert.Equal(t, "/grades/s1", nn.ActionURL)
	assert.Equal(t, notification.PriorityHigh, nn.Priority)
	if assert.NotNil(t, nn.ExpiresAt) {
		assert.Equal(t, now.Add(48*time.Hour), *nn.ExpiresAt)
	}

	tmpl.ExpiresInHours = 0
	assert.Nil(t, tmpl.Render(payload, now).ExpiresAt)
}
