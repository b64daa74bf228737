package sqlxrepos

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

const notificationColumns = `id, recipient_id, title, message, type, priority, priority_rank, category, icon,
	is_read, read_at, is_archived, archived_at, expires_at, action_url, action_text,
	sender_id, sender_name, sender_role, related_type, related_id, created_at, updated_at`

const insertNotification = `INSERT INTO notifications (` + notificationColumns + `) VALUES (
	:id, :recipient_id, :title, :message, :type, :priority, :priority_rank, :category, :icon,
	:is_read, :read_at, :is_archived, :archived_at, :expires_at, :action_url, :action_text,
	:sender_id, :sender_name, :sender_role, :related_type, :related_id, :created_at, :updated_at)`

type notificationRow struct {
	ID           string      `db:"id"`
	RecipientID  string      `db:"recipient_id"`
	Title        string      `db:"title"`
	Message      string      `db:"message"`
	Type         string      `db:"type"`
	Priority     string      `db:"priority"`
	PriorityRank int         `db:"priority_rank"`
	Category     string      `db:"category"`
	Icon         string      `db:"icon"`
	IsRead       bool        `db:"is_read"`
	ReadAt       null.Time   `db:"read_at"`
	IsArchived   bool        `db:"is_archived"`
	ArchivedAt   null.Time   `db:"archived_at"`
	ExpiresAt    null.Time   `db:"expires_at"`
	ActionURL    string      `db:"action_url"`
	ActionText   string      `db:"action_text"`
	SenderID     null.String `db:"sender_id"`
	SenderName   null.String `db:"sender_name"`
	SenderRole   null.String `db:"sender_role"`
	RelatedType  null.String `db:"related_type"`
	RelatedID    null.String `db:"related_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func newNotificationRow(n notification.Notification) notificationRow {
	row := notificationRow{
		ID:           n.ID,
		RecipientID:  n.Recipient,
		Title:        n.Title,
		Message:      n.Message,
		Type:         string(n.Type),
		Priority:     string(n.Priority),
		PriorityRank: n.Priority.Rank(),
		Category:     string(n.Category),
		Icon:         n.Icon,
		IsRead:       n.Read,
		ReadAt:       null.TimeFromPtr(n.ReadAt),
		IsArchived:   n.Archived,
		ArchivedAt:   null.TimeFromPtr(n.ArchivedAt),
		ExpiresAt:    null.TimeFromPtr(n.ExpiresAt),
		ActionURL:    n.ActionURL,
		ActionText:   n.ActionText,
		CreatedAt:    n.CreatedAt.UTC(),
		UpdatedAt:    n.UpdatedAt.UTC(),
	}
	if n.Sender != nil {
		row.SenderID = null.StringFrom(n.Sender.ID)
		row.SenderName = null.StringFrom(n.Sender.Name)
		row.SenderRole = null.StringFrom(n.Sender.Role)
	}
	if n.RelatedEntity != nil {
		row.RelatedType = null.StringFrom(n.RelatedEntity.Type)
		row.RelatedID = null.StringFrom(n.RelatedEntity.ID)
	}
	return row
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func (row notificationRow) notification() notification.Notification {
	n := notification.Notification{
		ID:         row.ID,
		Recipient:  row.RecipientID,
		Title:      row.Title,
		Message:    row.Message,
		Type:       notification.Type(row.Type),
		Priority:   notification.Priority(row.Priority),
		Category:   notification.Category(row.Category),
		Icon:       row.Icon,
		Read:       row.IsRead,
		ReadAt:     utcPtr(row.ReadAt),
		Archived:   row.IsArchived,
		ArchivedAt: utcPtr(row.ArchivedAt),
		ExpiresAt:  utcPtr(row.ExpiresAt),
		ActionURL:  row.ActionURL,
		ActionText: row.ActionText,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.SenderID.Valid {
		n.Sender = &notification.Sender{ID: row.SenderID.String, Name: row.SenderName.String, Role: row.SenderRole.String}
	}
	if row.RelatedType.Valid {
		n.RelatedEntity = &notification.RelatedEntity{Type: row.RelatedType.String, ID: row.RelatedID.String}
	}
	return n
}

type notificationRepository struct {
	db core.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db core.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateMany(ctx context.Context, notifs ...notification.Notification) error {
	if len(notifs) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(err, "begin create notifications")
	}
	for _, n := range notifs {
		if _, err = tx.NamedExecContext(ctx, insertNotification, newNotificationRow(n)); err != nil {
			_ = tx.Rollback()
			return storageErr(err, "insert notification")
		}
	}
	return storageErr(tx.Commit(), "commit create notifications")
}

func (repo *notificationRepository) Get(ctx context.Context, id string) (notification.Notification, error) {
	var row notificationRow
	q := repo.db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`)
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return notification.Notification{}, storageErr(err, "get notification")
	}
	return row.notification(), nil
}

func (repo *notificationRepository) listConditions(
	recipient string,
	filter notification.ListFilter,
	now time.Time,
) ([]string, []interface{}) {
	conds := []string{"recipient_id = ?"}
	args := []interface{}{recipient}
	if !filter.IncludeArchived {
		conds = append(conds, "is_archived = ?")
		args = append(args, false)
	}
	if !filter.IncludeExpired {
		conds = append(conds, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, now.UTC())
	}
	if filter.Read != nil {
		conds = append(conds, "is_read = ?")
		args = append(args, *filter.Read)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	return conds, args
}

func (repo *notificationRepository) Query(
	ctx context.Context,
	recipient string,
	filter notification.ListFilter,
	now time.Time,
) ([]notification.Notification, int, error) {
	conds, args := repo.listConditions(recipient, filter, now)
	where := whereClause(conds)

	var total int
	if err := repo.db.GetContext(ctx, &total, repo.db.Rebind(`SELECT COUNT(*) FROM notifications`+where), args...); err != nil {
		return nil, 0, storageErr(err, "count notifications")
	}
	if total == 0 {
		return []notification.Notification{}, 0, nil
	}

	q := repo.db.Rebind(`SELECT ` + notificationColumns + ` FROM notifications` + where +
		` ORDER BY priority_rank DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`)
	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, q, append(args, filter.Limit, filter.Offset())...); err != nil {
		return nil, 0, storageErr(err, "query notifications")
	}

	notifs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notifs = append(notifs, row.notification())
	}
	return notifs, total, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipient string, now time.Time) (int, error) {
	var count int
	q := repo.db.Rebind(`SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND is_read = ? AND is_archived = ? AND (expires_at IS NULL OR expires_at > ?)`)
	if err := repo.db.GetContext(ctx, &count, q, recipient, false, false, now.UTC()); err != nil {
		return 0, storageErr(err, "count unread notifications")
	}
	return count, nil
}

// selector renders sel as a WHERE fragment.
func (repo *notificationRepository) selector(sel notification.Selector) (string, []interface{}, error) {
	if sel.All {
		return "recipient_id = ?", []interface{}{sel.Recipient}, nil
	}
	q, args, err := inClause("id", sel.IDs)
	if err != nil {
		return "", nil, err
	}
	if sel.Recipient != "" {
		q += " AND recipient_id = ?"
		args = append(args, sel.Recipient)
	}
	return q, args, nil
}

func (repo *notificationRepository) update(
	ctx context.Context,
	sel notification.Selector,
	op, set string,
	setArgs []interface{},
	guard string,
	guardArgs ...interface{},
) (int, error) {
	if sel.IsEmpty() {
		return 0, nil
	}
	selQ, selArgs, err := repo.selector(sel)
	if err != nil {
		return 0, storageErr(err, op)
	}
	q := repo.db.Rebind(`UPDATE notifications SET ` + set + ` WHERE ` + guard + ` AND ` + selQ)
	args := append(append(setArgs, guardArgs...), selArgs...)
	res, err := repo.db.ExecContext(ctx, q, args...)
	return rowsAffected(res, err, op)
}

func (repo *notificationRepository) MarkRead(ctx context.Context, sel notification.Selector, at time.Time) (int, error) {
	at = at.UTC()
	return repo.update(ctx, sel, "mark notifications read",
		"is_read = ?, read_at = ?, updated_at = ?", []interface{}{true, at, at},
		"is_read = ?", false,
	)
}

func (repo *notificationRepository) MarkUnread(ctx context.Context, sel notification.Selector, at time.Time) (int, error) {
	at = at.UTC()
	return repo.update(ctx, sel, "mark notifications unread",
		"is_read = ?, read_at = NULL, updated_at = ?", []interface{}{false, at},
		"is_read = ? AND is_archived = ?", true, false,
	)
}

func (repo *notificationRepository) Archive(ctx context.Context, sel notification.Selector, at time.Time) (int, error) {
	at = at.UTC()
	return repo.update(ctx, sel, "archive notifications",
		"is_archived = ?, archived_at = ?, is_read = ?, read_at = COALESCE(read_at, ?), updated_at = ?",
		[]interface{}{true, at, true, at, at},
		"is_archived = ?", false,
	)
}

func (repo *notificationRepository) Delete(ctx context.Context, sel notification.Selector) (int, error) {
	if sel.IsEmpty() {
		return 0, nil
	}
	selQ, selArgs, err := repo.selector(sel)
	if err != nil {
		return 0, storageErr(err, "delete notifications")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`DELETE FROM notifications WHERE `+selQ), selArgs...)
	return rowsAffected(res, err, "delete notifications")
}

func (repo *notificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	q := repo.db.Rebind(`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= ?`)
	res, err := repo.db.ExecContext(ctx, q, now.UTC())
	return rowsAffected(res, err, "delete expired notifications")
}
