package automation

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
)

// Recipient policies
const (
	RecipientsAll          = "all"
	RecipientsRole         = "role"
	RecipientsSpecific     = "specific"
	RecipientsEventRelated = "event_related"
)

type (
	// Conditions maps a recognized condition key to its threshold. Unknown keys always match.
	Conditions map[string]interface{}

	// Template describes the notification a rule generates. Text fields may hold {{field}} placeholders.
	Template struct {
		Title          string                `json:"title" validate:"required,notblank,max=200"`
		Message        string                `json:"message" validate:"required,notblank,max=2000"`
		Type           notification.Type     `json:"type" validate:"omitempty,notiftype"`
		Category       notification.Category `json:"category" validate:"omitempty,notifcategory"`
		Priority       notification.Priority `json:"priority" validate:"omitempty,notifpriority"`
		Icon           string                `json:"icon,omitempty" validate:"omitempty,max=50"`
		ActionURL      string                `json:"action_url,omitempty" validate:"omitempty,max=500"`
		ActionText     string                `json:"action_text,omitempty" validate:"omitempty,max=100"`
		ExpiresInHours int                   `json:"expires_in_hours,omitempty" validate:"gte=0"`
		SendEmail      bool                  `json:"send_email,omitempty"`
	}

	RecipientPolicy struct {
		Type    string   `json:"type" validate:"required,oneof=all role specific event_related"`
		Roles   []string `json:"roles,omitempty"`
		UserIDs []string `json:"user_ids,omitempty"`
	}

	Rule struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Event      string          `json:"event"`
		Conditions Conditions      `json:"conditions"`
		Template   Template        `json:"template"`
		Recipients RecipientPolicy `json:"recipients"`
		Enabled    bool            `json:"enabled"`
		CreatedAt  time.Time       `json:"created_at"` // UTC
		UpdatedAt  time.Time       `json:"updated_at"` // UTC
	}
)

// NewRule contains information needed to create or replace a Rule.
type NewRule struct {
	Name       string          `json:"name" validate:"required,notblank,max=255"`
	Event      string          `json:"event" validate:"required,notblank,max=100"`
	Conditions Conditions      `json:"conditions"`
	Template   Template        `json:"template"`
	Recipients RecipientPolicy `json:"recipients"`
	Enabled    *bool           `json:"enabled"`
}

func (nr *NewRule) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Event = core.CleanString(nr.Event, true /* lower */)
	nr.Template.Title = core.CleanString(nr.Template.Title)
	nr.Template.Message = core.CleanString(nr.Template.Message)
	nr.Recipients.Type = core.CleanString(nr.Recipients.Type, true /* lower */)
	nr.Recipients.Roles = core.UniqueStrings(nr.Recipients.Roles)
	nr.Recipients.UserIDs = core.UniqueStrings(nr.Recipients.UserIDs)

	if err := validate.Struct(nr); err != nil {
		return err
	}

	switch nr.Recipients.Type {
	case RecipientsRole:
		if len(nr.Recipients.Roles) == 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "recipients.roles", Error: "this field is required"})
		}
		for _, r := range nr.Recipients.Roles {
			if !user.IsValidRole(r) {
				return core.NewValidationError(nil, core.FieldError{Field: "recipients.roles", Error: "invalid roles"})
			}
		}
	case RecipientsSpecific:
		if len(nr.Recipients.UserIDs) == 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "recipients.user_ids", Error: "this field is required"})
		}
	}

	if nr.Template.Type == "" {
		nr.Template.Type = notification.TypeInfo
	}
	if nr.Template.Priority == "" {
		nr.Template.Priority = notification.PriorityMedium
	}
	if nr.Template.Category == "" {
		nr.Template.Category = notification.CategoryGeneral
	}
	if nr.Conditions == nil {
		nr.Conditions = Conditions{}
	}
	return nil
}

func (nr NewRule) enabled() bool {
	return nr.Enabled == nil || *nr.Enabled
}
