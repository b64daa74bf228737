package automation

import (
	"fmt"
	"regexp"
	"time"

	"github.com/trezcool/masomo-notify/core/notification"
)

var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// Interpolate replaces every {{field}} in s with the payload value. Missing fields render empty.
func Interpolate(s string, payload Payload) string {
	if s == "" {
		return s
	}
	return placeholderRegex.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderRegex.FindStringSubmatch(match)[1]
		v, ok := payload[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

// Render builds the notification data for payload.
func (tmpl Template) Render(payload Payload, now time.Time) notification.NewNotification {
	nn := notification.NewNotification{
		Title:      Interpolate(tmpl.Title, payload),
		Message:    Interpolate(tmpl.Message, payload),
		Type:       tmpl.Type,
		Priority:   tmpl.Priority,
		Category:   tmpl.Category,
		Icon:       tmpl.Icon,
		ActionURL:  Interpolate(tmpl.ActionURL, payload),
		ActionText: tmpl.ActionText,
	}
	if tmpl.ExpiresInHours > 0 {
		exp := now.Add(time.Duration(tmpl.ExpiresInHours) * time.Hour).UTC()
		nn.ExpiresAt = &exp
	}
	return nn
}
