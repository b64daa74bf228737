package notification

import (
	"net/mail"
	"strings"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/user"
)

const emailTemplate = "notification"

type emailData struct {
	RecipientName string
	Title         string
	Message       string
	ActionURL     string
	ActionText    string
	Priority      Priority
	PriorityColor string
}

// EmailMessage renders n as an email to usr. It returns nil when usr has no address.
func EmailMessage(n Notification, usr user.User, frontendBaseURL string) *core.EmailMessage {
	if usr.Email == "" {
		return nil
	}

	subject := n.Title
	switch n.Priority {
	case PriorityUrgent:
		subject = "[URGENT] " + subject
	case PriorityHigh:
		subject = "[Important] " + subject
	}

	actionURL := n.ActionURL
	if strings.HasPrefix(actionURL, "/") {
		actionURL = strings.TrimRight(frontendBaseURL, "/") + actionURL
	}

	return &core.EmailMessage{
		To:              []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:         subject,
		TemplateName:    emailTemplate,
		FrontendBaseURL: frontendBaseURL,
		TemplateData: emailData{
			RecipientName: usr.Name,
			Title:         n.Title,
			Message:       n.Message,
			ActionURL:     actionURL,
			ActionText:    n.ActionText,
			Priority:      n.Priority,
			PriorityColor: n.Priority.Color(),
		},
	}
}
