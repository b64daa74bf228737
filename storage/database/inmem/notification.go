package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

// selected returns the records targeted by sel. Callers hold the lock.
func (repo *notificationRepository) selected(sel notification.Selector) []*notification.Notification {
	if sel.IsEmpty() {
		return nil
	}
	var out []*notification.Notification
	if sel.All {
		for _, n := range repo.db.table {
			if n.Recipient == sel.Recipient {
				out = append(out, n)
			}
		}
		return out
	}
	for _, id := range sel.IDs {
		n, ok := repo.db.table[id]
		if !ok || (sel.Recipient != "" && n.Recipient != sel.Recipient) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (repo *notificationRepository) CreateMany(_ context.Context, notifs ...notification.Notification) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range notifs {
		n := notifs[i]
		repo.db.table[n.ID] = &n
	}
	return nil
}

func (repo *notificationRepository) Get(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, core.ErrNotFound
}

func (repo *notificationRepository) Query(
	_ context.Context,
	recipient string,
	filter notification.ListFilter,
	now time.Time,
) ([]notification.Notification, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matches := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.Recipient != recipient {
			continue
		}
		if !filter.IncludeArchived && n.Archived {
			continue
		}
		if !filter.IncludeExpired && n.IsExpired(now) {
			continue
		}
		if filter.Read != nil && n.Read != *filter.Read {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Category != "" && n.Category != filter.Category {
			continue
		}
		if filter.Priority != "" && n.Priority != filter.Priority {
			continue
		}
		matches = append(matches, *n)
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(matches)
	start := filter.Offset()
	if start >= total {
		return []notification.Notification{}, total, nil
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipient string, now time.Time) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.table {
		if n.Recipient == recipient && n.CountsAsUnread(now) {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, sel notification.Selector, at time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var affected int
	for _, n := range repo.selected(sel) {
		if n.Read {
			continue
		}
		readAt := at
		n.Read = true
		n.ReadAt = &readAt
		n.UpdatedAt = at
		affected++
	}
	return affected, nil
}

func (repo *notificationRepository) MarkUnread(_ context.Context, sel notification.Selector, at time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var affected int
	for _, n := range repo.selected(sel) {
		if !n.Read || n.Archived {
			continue
		}
		n.Read = false
		n.ReadAt = nil
		n.UpdatedAt = at
		affected++
	}
	return affected, nil
}

func (repo *notificationRepository) Archive(_ context.Context, sel notification.Selector, at time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var affected int
	for _, n := range repo.selected(sel) {
		if n.Archived {
			continue
		}
		archivedAt := at
		n.Archived = true
		n.ArchivedAt = &archivedAt
		if !n.Read {
			readAt := at
			n.Read = true
			n.ReadAt = &readAt
		}
		n.UpdatedAt = at
		affected++
	}
	return affected, nil
}

func (repo *notificationRepository) Delete(_ context.Context, sel notification.Selector) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	targets := repo.selected(sel)
	for _, n := range targets {
		delete(repo.db.table, n.ID)
	}
	return len(targets), nil
}

func (repo *notificationRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var deleted int
	for id, n := range repo.db.table {
		if n.IsExpired(now) {
			delete(repo.db.table, id)
			deleted++
		}
	}
	return deleted, nil
}
