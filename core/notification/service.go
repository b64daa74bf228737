package notification

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/user"
)

type (
	// Repository persists notifications. Implementations must:
	//  - write CreateMany as a single atomic batch;
	//  - return core.ErrNotFound from Get for unknown ids;
	//  - apply state mutations with conditional updates so repeated calls are no-ops;
	//  - wrap driver failures in core.StorageError.
	Repository interface {
		CreateMany(ctx context.Context, notifs ...Notification) error
		Get(ctx context.Context, id string) (Notification, error)
		// Query returns one page of recipient's notifications ordered by priority then recency, plus the total match count.
		Query(ctx context.Context, recipient string, filter ListFilter, now time.Time) ([]Notification, int, error)
		CountUnread(ctx context.Context, recipient string, now time.Time) (int, error)
		MarkRead(ctx context.Context, sel Selector, at time.Time) (int, error)
		// MarkUnread leaves archived records untouched.
		MarkUnread(ctx context.Context, sel Selector, at time.Time) (int, error)
		// Archive also marks the records read.
		Archive(ctx context.Context, sel Selector, at time.Time) (int, error)
		Delete(ctx context.Context, sel Selector) (int, error)
		DeleteExpired(ctx context.Context, now time.Time) (int, error)
	}

	Service struct {
		repo     Repository
		dir      user.Directory
		validate *validator.Validate
		conf     core.NotificationsConfig
		now      func() time.Time
	}
)

func NewService(
	repo Repository,
	dir user.Directory,
	validate *validator.Validate,
	conf core.NotificationsConfig,
	clock ...func() time.Time,
) *Service {
	now := time.Now
	if len(clock) > 0 && clock[0] != nil {
		now = clock[0]
	}
	if conf.DefaultPageSize <= 0 {
		conf.DefaultPageSize = 20
	}
	if conf.MaxPageSize <= 0 {
		conf.MaxPageSize = 100
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		validate: validate,
		conf:     conf,
		now:      now,
	}
}

func (svc *Service) Now() time.Time { return svc.now().UTC() }

func (svc *Service) Create(ctx context.Context, nn NewNotification) (Notification, error) {
	if err := nn.Validate(svc.validate); err != nil {
		return Notification{}, err
	}
	if nn.Recipient == "" {
		return Notification{}, core.NewValidationError(nil, core.FieldError{Field: "recipient", Error: "this field is required"})
	}

	n := nn.build(uuid.NewString(), nn.Recipient, svc.Now())
	if err := svc.repo.CreateMany(ctx, n); err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

// CreateBulk creates one notification per distinct recipient in a single batch.
func (svc *Service) CreateBulk(ctx context.Context, nn NewNotification, recipients []string) ([]Notification, error) {
	if err := nn.Validate(svc.validate); err != nil {
		return nil, err
	}
	recipients = core.UniqueStrings(recipients)
	if len(recipients) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "recipients", Error: "this field is required"})
	}

	now := svc.Now()
	notifs := make([]Notification, 0, len(recipients))
	for _, r := range recipients {
		notifs = append(notifs, nn.build(uuid.NewString(), r, now))
	}
	if err := svc.repo.CreateMany(ctx, notifs...); err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}
	return notifs, nil
}

// CreateRoleBased creates the notification for every active user holding one of roles.
func (svc *Service) CreateRoleBased(ctx context.Context, roles []string, nn NewNotification) ([]Notification, error) {
	roles = core.UniqueStrings(roles)
	if len(roles) == 0 {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "this field is required"})
	}
	for _, r := range roles {
		if !user.IsValidRole(r) {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "invalid roles"})
		}
	}

	users, err := svc.dir.FindByRole(ctx, roles...)
	if err != nil {
		return nil, errors.Wrap(err, "finding users by role")
	}
	if len(users) == 0 {
		return []Notification{}, nil
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return svc.CreateBulk(ctx, nn, ids)
}

// Get returns the notification; when owner is set, it must be its recipient.
func (svc *Service) Get(ctx context.Context, owner, id string) (Notification, error) {
	n, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if owner != "" && n.Recipient != owner {
		return Notification{}, core.ErrNotFound
	}
	return n, nil
}

func (svc *Service) List(ctx context.Context, recipient string, filter ListFilter) (Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = svc.conf.DefaultPageSize
	}
	if filter.Limit > svc.conf.MaxPageSize {
		filter.Limit = svc.conf.MaxPageSize
	}

	now := svc.Now()
	items, total, err := svc.repo.Query(ctx, recipient, filter, now)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying notifications")
	}
	unread, err := svc.repo.CountUnread(ctx, recipient, now)
	if err != nil {
		return Page{}, errors.Wrap(err, "counting unread notifications")
	}
	if items == nil {
		items = []Notification{}
	}
	return Page{
		Items:       items,
		Total:       total,
		UnreadCount: unread,
		Page:        filter.Page,
		Limit:       filter.Limit,
		HasMore:     filter.Offset()+len(items) < total,
	}, nil
}

func (svc *Service) UnreadCount(ctx context.Context, recipient string) (int, error) {
	count, err := svc.repo.CountUnread(ctx, recipient, svc.Now())
	return count, errors.Wrap(err, "counting unread notifications")
}

// MarkRead marks a single notification read. Calling it again keeps the first ReadAt.
func (svc *Service) MarkRead(ctx context.Context, owner, id string) (Notification, error) {
	if _, err := svc.Get(ctx, owner, id); err != nil {
		return Notification{}, err
	}
	if _, err := svc.repo.MarkRead(ctx, Selector{IDs: []string{id}, Recipient: owner}, svc.Now()); err != nil {
		return Notification{}, errors.Wrap(err, "marking notification read")
	}
	return svc.Get(ctx, owner, id)
}

func (svc *Service) MarkManyRead(ctx context.Context, owner string, ids ...string) (int, error) {
	sel := Selector{IDs: core.UniqueStrings(ids), Recipient: owner}
	if sel.IsEmpty() {
		return 0, nil
	}
	n, err := svc.repo.MarkRead(ctx, sel, svc.Now())
	return n, errors.Wrap(err, "marking notifications read")
}

func (svc *Service) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	sel := Selector{Recipient: recipient, All: true}
	if sel.IsEmpty() {
		return 0, nil
	}
	n, err := svc.repo.MarkRead(ctx, sel, svc.Now())
	return n, errors.Wrap(err, "marking all notifications read")
}

func (svc *Service) MarkManyUnread(ctx context.Context, owner string, ids ...string) (int, error) {
	sel := Selector{IDs: core.UniqueStrings(ids), Recipient: owner}
	if sel.IsEmpty() {
		return 0, nil
	}
	n, err := svc.repo.MarkUnread(ctx, sel, svc.Now())
	return n, errors.Wrap(err, "marking notifications unread")
}

func (svc *Service) Archive(ctx context.Context, owner, id string) (int, error) {
	return svc.ArchiveMany(ctx, owner, id)
}

func (svc *Service) ArchiveMany(ctx context.Context, owner string, ids ...string) (int, error) {
	sel := Selector{IDs: core.UniqueStrings(ids), Recipient: owner}
	if sel.IsEmpty() {
		return 0, nil
	}
	n, err := svc.repo.Archive(ctx, sel, svc.Now())
	return n, errors.Wrap(err, "archiving notifications")
}

func (svc *Service) Delete(ctx context.Context, owner, id string) (int, error) {
	return svc.DeleteMany(ctx, owner, id)
}

func (svc *Service) DeleteMany(ctx context.Context, owner string, ids ...string) (int, error) {
	sel := Selector{IDs: core.UniqueStrings(ids), Recipient: owner}
	if sel.IsEmpty() {
		return 0, nil
	}
	n, err := svc.repo.Delete(ctx, sel)
	return n, errors.Wrap(err, "deleting notifications")
}

// ExpireSweep deletes every notification whose expiry has passed.
func (svc *Service) ExpireSweep(ctx context.Context) (int, error) {
	n, err := svc.repo.DeleteExpired(ctx, svc.Now())
	return n, errors.Wrap(err, "deleting expired notifications")
}
