package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
	"github.com/trezcool/masomo-notify/storage/database"
)

// NewValidator returns a validator with every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	notification.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB returns a migrated in-memory SQLite database closed at the end of the test.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	id, name, role string,
	parentIDs ...string,
) user.User {
	t.Helper()
	usr := user.User{
		ID:        id,
		Name:      name,
		Email:     id + "@masomo.test",
		Role:      role,
		IsActive:  true,
		ParentIDs: parentIDs,
		CreatedAt: time.Now().UTC(),
	}
	usr, err := repo.UpdateOrCreate(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// NotificationOption tweaks a notification built by CreateNotification.
type NotificationOption func(n *notification.Notification)

func WithPriority(p notification.Priority) NotificationOption {
	return func(n *notification.Notification) { n.Priority = p }
}

func WithType(typ notification.Type) NotificationOption {
	return func(n *notification.Notification) { n.Type = typ }
}

func WithCreatedAt(at time.Time) NotificationOption {
	return func(n *notification.Notification) {
		n.CreatedAt = at.UTC()
		n.UpdatedAt = at.UTC()
	}
}

func WithExpiresAt(at time.Time) NotificationOption {
	return func(n *notification.Notification) {
		exp := at.UTC()
		n.ExpiresAt = &exp
	}
}

func WithRead(at time.Time) NotificationOption {
	return func(n *notification.Notification) {
		readAt := at.UTC()
		n.Read = true
		n.ReadAt = &readAt
	}
}

func WithArchived(at time.Time) NotificationOption {
	return func(n *notification.Notification) {
		archivedAt := at.UTC()
		n.Archived = true
		n.ArchivedAt = &archivedAt
		if !n.Read {
			n.Read = true
			n.ReadAt = &archivedAt
		}
	}
}

func CreateNotification(
	t *testing.T,
	repo notification.Repository,
	recipient, title string,
	opts ...NotificationOption,
) notification.Notification {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	n := notification.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Title:     title,
		Message:   title + " message",
		Type:      notification.TypeInfo,
		Priority:  notification.PriorityMedium,
		Category:  notification.CategoryGeneral,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(&n)
	}
	if err := repo.CreateMany(context.Background(), n); err != nil {
		t.Fatalf("CreateNotification() failed: %v", err)
	}
	return n
}

// Logger writes log lines to the test output and remembers their messages.
type Logger struct {
	t *testing.T

	mu       sync.Mutex
	messages []string
}

func NewLogger(t *testing.T) *Logger {
	return &Logger{t: t}
}

func (l *Logger) log(level, msg string, args ...interface{}) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
	if len(args) > 0 {
		l.t.Logf("[%s] %s %s", level, msg, fmt.Sprint(args...))
		return
	}
	l.t.Logf("[%s] %s", level, msg)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args...) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args...) }

// Messages returns the messages logged so far.
func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}
