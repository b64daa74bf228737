package delivery

import (
	"time"

	"github.com/trezcool/masomo-notify/core/notification"
)

type MessageType string

// Outbound
const (
	MsgConnectionAck MessageType = "connection_ack"
	MsgNotification  MessageType = "notification"
	MsgSystemNotice  MessageType = "system_notice"
)

// Inbound
const (
	MsgNotificationRead     MessageType = "notification_read"
	MsgNotificationArchived MessageType = "notification_archived"
)

// Notice is a transient, non-persisted announcement broadcast to connected users.
type Notice struct {
	Title    string                `json:"title" validate:"required,notblank,max=200"`
	Message  string                `json:"message" validate:"required,notblank,max=2000"`
	Priority notification.Priority `json:"priority" validate:"omitempty,notifpriority"`
}

type Message struct {
	Type           MessageType                `json:"type"`
	UserID         string                     `json:"user_id,omitempty"`
	Notification   *notification.Notification `json:"notification,omitempty"`
	NotificationID string                     `json:"notification_id,omitempty"`
	Notice         *Notice                    `json:"notice,omitempty"`
	SentAt         time.Time                  `json:"sent_at"`
}

func AckMessage(userID string, now time.Time) Message {
	return Message{Type: MsgConnectionAck, UserID: userID, SentAt: now.UTC()}
}

func NotificationMessage(n notification.Notification, now time.Time) Message {
	return Message{Type: MsgNotification, Notification: &n, SentAt: now.UTC()}
}

func NoticeMessage(notice Notice, now time.Time) Message {
	if notice.Priority == "" {
		notice.Priority = notification.PriorityMedium
	}
	return Message{Type: MsgSystemNotice, Notice: &notice, SentAt: now.UTC()}
}
