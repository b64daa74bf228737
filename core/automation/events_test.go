package automation_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/tests"
)

func TestDecodeEvent(t *testing.T) {
	validate, _ := testutil.NewValidator()

	tests := []struct {
		name    string
		event   string
		raw     string
		want    automation.Event
		wantErr bool
	}{
		{name: "blank name", event: "  ", raw: `{}`, wantErr: true},
		{
			name: "grade updated", event: "Grade_Updated",
			raw:  `{"studentId":"s1","studentName":"Amani","grade":42}`,
			want: automation.GradeUpdated{StudentID: "s1", StudentName: "Amani", Grade: 42},
		},
		{name: "grade updated without student", event: automation.EventGradeUpdated, raw: `{"grade":42}`, wantErr: true},
		{name: "malformed payload", event: automation.EventClubApproved, raw: `{"clubId":`, wantErr: true},
		{
			name: "membership", event: automation.EventClubMembershipApproved,
			raw:  `{"clubId":"c1","clubName":"Chess","userId":"u1"}`,
			want: automation.ClubMembershipApproved{ClubID: "c1", ClubName: "Chess", UserID: "u1"},
		},
		{
			name: "homework due", event: automation.EventHomeworkDue,
			raw:  `{"homeworkId":"h1","title":"Essay","daysBefore":1}`,
			want: automation.HomeworkDue{HomeworkID: "h1", Title: "Essay", DaysBefore: 1},
		},
		{
			name: "unknown event", event: "library_book_overdue",
			raw:  `{"bookId":"b1"}`,
			want: automation.GenericEvent{EventName: "library_book_overdue", Data: automation.Payload{"bookId": "b1"}},
		},
		{
			name: "unknown event without payload", event: "ping",
			want: automation.GenericEvent{EventName: "ping", Data: automation.Payload{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}
			ev, err := automation.DecodeEvent(tt.event, raw, validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestEvent_Fields(t *testing.T) {
	due := automation.HomeworkDue{HomeworkID: "h1", Title: "Essay", DaysBefore: 2}
	assert.Equal(t, automation.EventHomeworkDue, due.Name())
	assert.Equal(t, 2, due.Fields()["daysBefore"])
	assert.Equal(t, "", due.Fields()["dueDate"])

	assert.Equal(t, automation.Payload{}, automation.GenericEvent{EventName: "x"}.Fields())
}
