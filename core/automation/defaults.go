package automation

import "github.com/trezcool/masomo-notify/core/notification"

// DefaultRules is the rule set a fresh installation starts with.
func DefaultRules() []NewRule {
	return []NewRule{
		{
			Name:  "New homework assigned",
			Event: EventHomeworkCreated,
			Template: Template{
				Title:      "New homework: {{title}}",
				Message:    "{{teacherName}} assigned \"{{title}}\" in {{courseName}}, due {{dueDate}}.",
				Type:       notification.TypeInfo,
				Category:   notification.CategoryAcademic,
				Priority:   notification.PriorityMedium,
				Icon:       "book",
				ActionURL:  "/homework/{{homeworkId}}",
				ActionText: "View homework",
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:       "Homework due soon",
			Event:      EventHomeworkDue,
			Conditions: Conditions{CondDaysBefore: 2},
			Template: Template{
				Title:          "Homework due in {{daysBefore}} day(s)",
				Message:        "\"{{title}}\" ({{courseName}}) is due on {{dueDate}}.",
				Type:           notification.TypeReminder,
				Category:       notification.CategoryAcademic,
				Priority:       notification.PriorityHigh,
				Icon:           "clock",
				ActionURL:      "/homework/{{homeworkId}}",
				ActionText:     "Open homework",
				ExpiresInHours: 72,
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:  "Grade published",
			Event: EventGradeUpdated,
			Template: Template{
				Title:      "New grade in {{courseName}}",
				Message:    "{{studentName}} received {{grade}} for {{assessment}}.",
				Type:       notification.TypeInfo,
				Category:   notification.CategoryAcademic,
				Priority:   notification.PriorityMedium,
				Icon:       "award",
				ActionURL:  "/performance",
				ActionText: "View grades",
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:       "Low grade alert",
			Event:      EventGradeUpdated,
			Conditions: Conditions{CondGradeBelow: 50},
			Template: Template{
				Title:      "Low grade alert: {{courseName}}",
				Message:    "{{studentName}} scored {{grade}} on {{assessment}}. Please follow up with the teacher.",
				Type:       notification.TypeWarning,
				Category:   notification.CategoryAcademic,
				Priority:   notification.PriorityUrgent,
				Icon:       "alert-triangle",
				ActionURL:  "/performance",
				ActionText: "View grades",
				SendEmail:  true,
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:  "Club approved",
			Event: EventClubApproved,
			Template: Template{
				Title:      "Your club \"{{clubName}}\" was approved",
				Message:    "The administration approved {{clubName}}. You can now invite members.",
				Type:       notification.TypeApproval,
				Category:   notification.CategorySocial,
				Priority:   notification.PriorityMedium,
				Icon:       "users",
				ActionURL:  "/clubs/{{clubId}}",
				ActionText: "Open club",
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:  "Club membership approved",
			Event: EventClubMembershipApproved,
			Template: Template{
				Title:      "Welcome to {{clubName}}",
				Message:    "Your request to join {{clubName}} was approved.",
				Type:       notification.TypeSuccess,
				Category:   notification.CategorySocial,
				Priority:   notification.PriorityLow,
				Icon:       "user-check",
				ActionURL:  "/clubs/{{clubId}}",
				ActionText: "Open club",
			},
			Recipients: RecipientPolicy{Type: RecipientsEventRelated},
		},
		{
			Name:  "School announcement",
			Event: EventAnnouncementPublished,
			Template: Template{
				Title:      "{{title}}",
				Message:    "{{body}}",
				Type:       notification.TypeAnnouncement,
				Category:   notification.CategoryAdministrative,
				Priority:   notification.PriorityHigh,
				Icon:       "megaphone",
				ActionURL:  "/announcements/{{announcementId}}",
				ActionText: "Read more",
			},
			Recipients: RecipientPolicy{Type: RecipientsAll},
		},
	}
}
