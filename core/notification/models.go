package notification

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-notify/core"
)

type (
	Type     string
	Priority string
	Category string
)

const (
	TypeInfo         Type = "info"
	TypeSuccess      Type = "success"
	TypeWarning      Type = "warning"
	TypeError        Type = "error"
	TypeRequest      Type = "request"
	TypeApproval     Type = "approval"
	TypeReminder     Type = "reminder"
	TypeAnnouncement Type = "announcement"

	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	CategoryAcademic       Category = "academic"
	CategoryAdministrative Category = "administrative"
	CategorySocial         Category = "social"
	CategoryTechnical      Category = "technical"
	CategorySecurity       Category = "security"
	CategoryGeneral        Category = "general"
)

var (
	Types      = []Type{TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeRequest, TypeApproval, TypeReminder, TypeAnnouncement}
	Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
	Categories = []Category{CategoryAcademic, CategoryAdministrative, CategorySocial, CategoryTechnical, CategorySecurity, CategoryGeneral}

	priorityRanks = map[Priority]int{
		PriorityLow:    1,
		PriorityMedium: 2,
		PriorityHigh:   3,
		PriorityUrgent: 4,
	}
	priorityColors = map[Priority]string{
		PriorityLow:    "#9e9e9e",
		PriorityMedium: "#1976d2",
		PriorityHigh:   "#f57c00",
		PriorityUrgent: "#d32f2f",
	}
)

func (t Type) IsValid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

func (p Priority) IsValid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// Rank orders priorities: urgent > high > medium > low.
func (p Priority) Rank() int { return priorityRanks[p] }

func (p Priority) Color() string { return priorityColors[p] }

func (c Category) IsValid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Notification struct {
	ID            string         `json:"id"`
	Recipient     string         `json:"recipient"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          Type           `json:"type"`
	Priority      Priority       `json:"priority"`
	Category      Category       `json:"category"`
	Icon          string         `json:"icon,omitempty"`
	Read          bool           `json:"read"`
	ReadAt        *time.Time     `json:"read_at"`
	Archived      bool           `json:"archived"`
	ArchivedAt    *time.Time     `json:"archived_at"`
	ExpiresAt     *time.Time     `json:"expires_at"`
	ActionURL     string         `json:"action_url,omitempty"`
	ActionText    string         `json:"action_text,omitempty"`
	Sender        *Sender        `json:"sender,omitempty"`
	RelatedEntity *RelatedEntity `json:"related_entity,omitempty"`
	CreatedAt     time.Time      `json:"created_at"` // UTC
	UpdatedAt     time.Time      `json:"updated_at"` // UTC
}

func (n Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// CountsAsUnread tells whether n contributes to its recipient's unread count.
func (n Notification) CountsAsUnread(now time.Time) bool {
	return !n.Read && !n.Archived && !n.IsExpired(now)
}

// NewNotification contains information needed to create notifications.
// Recipient is only used by single creation; bulk creation takes its own recipient list.
type NewNotification struct {
	Recipient     string         `json:"recipient"`
	Title         string         `json:"title" validate:"required,notblank,max=200"`
	Message       string         `json:"message" validate:"required,notblank,max=2000"`
	Type          Type           `json:"type" validate:"omitempty,notiftype"`
	Priority      Priority       `json:"priority" validate:"omitempty,notifpriority"`
	Category      Category       `json:"category" validate:"omitempty,notifcategory"`
	Icon          string         `json:"icon" validate:"omitempty,max=50"`
	ActionURL     string         `json:"action_url" validate:"omitempty,max=500"`
	ActionText    string         `json:"action_text" validate:"omitempty,max=100"`
	ExpiresAt     *time.Time     `json:"expires_at"`
	Sender        *Sender        `json:"sender"`
	RelatedEntity *RelatedEntity `json:"related_entity"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Recipient = core.CleanString(nn.Recipient)
	nn.Title = core.CleanString(nn.Title)
	nn.Message = core.CleanString(nn.Message)
	nn.ActionURL = core.CleanString(nn.ActionURL)
	nn.ActionText = core.CleanString(nn.ActionText)
	nn.Type = Type(core.CleanString(string(nn.Type), true /* lower */))
	nn.Priority = Priority(core.CleanString(string(nn.Priority), true /* lower */))
	nn.Category = Category(core.CleanString(string(nn.Category), true /* lower */))

	if err := validate.Struct(nn); err != nil {
		return err
	}
	if nn.Type == "" {
		nn.Type = TypeInfo
	}
	if nn.Priority == "" {
		nn.Priority = PriorityMedium
	}
	if nn.Category == "" {
		nn.Category = CategoryGeneral
	}
	return nil
}

func (nn NewNotification) build(id, recipient string, now time.Time) Notification {
	n := Notification{
		ID:            id,
		Recipient:     recipient,
		Title:         nn.Title,
		Message:       nn.Message,
		Type:          nn.Type,
		Priority:      nn.Priority,
		Category:      nn.Category,
		Icon:          nn.Icon,
		ActionURL:     nn.ActionURL,
		ActionText:    nn.ActionText,
		Sender:        nn.Sender,
		RelatedEntity: nn.RelatedEntity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if nn.ExpiresAt != nil {
		exp := nn.ExpiresAt.UTC()
		n.ExpiresAt = &exp
	}
	return n
}

// ListFilter narrows a recipient's listing. Zero values mean "no constraint".
type ListFilter struct {
	Read            *bool
	Type            Type
	Category        Category
	Priority        Priority
	IncludeArchived bool
	IncludeExpired  bool
	Page            int // 1-based
	Limit           int
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

type Page struct {
	Items       []Notification `json:"items"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unread_count"`
	Page        int            `json:"page"`
	Limit       int            `json:"limit"`
	HasMore     bool           `json:"has_more"`
}

// Selector targets the records of a state mutation.
// An empty Recipient matches any recipient; All ignores IDs and matches every record of Recipient.
type Selector struct {
	IDs       []string
	Recipient string
	All       bool
}

func (sel Selector) IsEmpty() bool {
	return len(sel.IDs) == 0 && !(sel.All && sel.Recipient != "")
}
