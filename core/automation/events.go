package automation

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
)

// Event names
const (
	EventHomeworkCreated        = "homework_created"
	EventHomeworkDue            = "homework_due"
	EventGradeUpdated           = "grade_updated"
	EventClubApproved           = "club_approved"
	EventClubMembershipApproved = "club_membership_approved"
	EventAnnouncementPublished  = "announcement_published"
)

const dateLayout = "2006-01-02"

// Payload is the flat view of an event used for conditions and {{field}} interpolation.
type Payload map[string]interface{}

// Event is a named domain occurrence handed to the engine by the rest of the portal.
type Event interface {
	Name() string
	Fields() Payload
}

type HomeworkCreated struct {
	HomeworkID  string    `json:"homeworkId" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	CourseName  string    `json:"courseName"`
	ClassID     string    `json:"classId"`
	TeacherName string    `json:"teacherName"`
	DueDate     time.Time `json:"dueDate"`
}

func (HomeworkCreated) Name() string { return EventHomeworkCreated }

func (e HomeworkCreated) Fields() Payload {
	return Payload{
		"homeworkId":  e.HomeworkID,
		"title":       e.Title,
		"courseName":  e.CourseName,
		"classId":     e.ClassID,
		"teacherName": e.TeacherName,
		"dueDate":     formatDate(e.DueDate),
	}
}

type HomeworkDue struct {
	HomeworkID string    `json:"homeworkId" validate:"required"`
	Title      string    `json:"title" validate:"required"`
	CourseName string    `json:"courseName"`
	ClassID    string    `json:"classId"`
	DueDate    time.Time `json:"dueDate"`
	DaysBefore int       `json:"daysBefore" validate:"gte=0"`
}

func (HomeworkDue) Name() string { return EventHomeworkDue }

func (e HomeworkDue) Fields() Payload {
	return Payload{
		"homeworkId": e.HomeworkID,
		"title":      e.Title,
		"courseName": e.CourseName,
		"classId":    e.ClassID,
		"dueDate":    formatDate(e.DueDate),
		"daysBefore": e.DaysBefore,
	}
}

type GradeUpdated struct {
	StudentID   string  `json:"studentId" validate:"required"`
	StudentName string  `json:"studentName"`
	CourseName  string  `json:"courseName"`
	Assessment  string  `json:"assessment"`
	Grade       float64 `json:"grade"`
}

func (GradeUpdated) Name() string { return EventGradeUpdated }

func (e GradeUpdated) Fields() Payload {
	return Payload{
		"studentId":   e.StudentID,
		"studentName": e.StudentName,
		"courseName":  e.CourseName,
		"assessment":  e.Assessment,
		"grade":       e.Grade,
	}
}

type ClubApproved struct {
	ClubID      string `json:"clubId" validate:"required"`
	ClubName    string `json:"clubName"`
	RequestedBy string `json:"requestedBy" validate:"required"`
}

func (ClubApproved) Name() string { return EventClubApproved }

func (e ClubApproved) Fields() Payload {
	return Payload{
		"clubId":      e.ClubID,
		"clubName":    e.ClubName,
		"requestedBy": e.RequestedBy,
	}
}

type ClubMembershipApproved struct {
	ClubID   string `json:"clubId" validate:"required"`
	ClubName string `json:"clubName"`
	UserID   string `json:"userId" validate:"required"`
}

func (ClubMembershipApproved) Name() string { return EventClubMembershipApproved }

func (e ClubMembershipApproved) Fields() Payload {
	return Payload{
		"clubId":   e.ClubID,
		"clubName": e.ClubName,
		"userId":   e.UserID,
	}
}

type AnnouncementPublished struct {
	AnnouncementID string `json:"announcementId" validate:"required"`
	Title          string `json:"title" validate:"required"`
	Body           string `json:"body"`
	Author         string `json:"author"`
}

func (AnnouncementPublished) Name() string { return EventAnnouncementPublished }

func (e AnnouncementPublished) Fields() Payload {
	return Payload{
		"announcementId": e.AnnouncementID,
		"title":          e.Title,
		"body":           e.Body,
		"author":         e.Author,
	}
}

// GenericEvent carries events the engine has no dedicated type for.
type GenericEvent struct {
	EventName string
	Data      Payload
}

func (e GenericEvent) Name() string { return e.EventName }

func (e GenericEvent) Fields() Payload {
	if e.Data == nil {
		return Payload{}
	}
	return e.Data
}

// DecodeEvent builds the typed event matching name from its JSON payload.
// Unknown names decode into a GenericEvent.
func DecodeEvent(name string, raw json.RawMessage, validate *validator.Validate) (Event, error) {
	name = core.CleanString(name, true /* lower */)
	if name == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "event", Error: "this field is required"})
	}
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var ev Event
	var err error
	switch name {
	case EventHomeworkCreated:
		var e HomeworkCreated
		err = decodeTyped(raw, &e, validate)
		ev = e
	case EventHomeworkDue:
		var e HomeworkDue
		err = decodeTyped(raw, &e, validate)
		ev = e
	case EventGradeUpdated:
		var e GradeUpdated
		err = decodeTyped(raw, &e, validate)
		ev = e
	case EventClubApproved:
		var e ClubApproved
		err = decodeTyped(raw, &e, validate)
		ev = e
	case EventClubMembershipApproved:
		var e ClubMembershipApproved
		err = decodeTyped(raw, &e, validate)
		ev = e
	case EventAnnouncementPublished:
		var e AnnouncementPublished
		err = decodeTyped(raw, &e, validate)
		ev = e
	default:
		var data Payload
		if err = json.Unmarshal(raw, &data); err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "invalid payload"))
		}
		ev = GenericEvent{EventName: name, Data: data}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeTyped(raw json.RawMessage, dest interface{}, validate *validator.Validate) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return core.NewValidationError(errors.Wrap(err, "invalid payload"))
	}
	return validate.Struct(dest)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
