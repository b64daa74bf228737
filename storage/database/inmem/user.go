package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-notify/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

// query returns active users ordered by creation then id. Callers hold the lock.
func (repo *userRepository) query(match func(u *user.User) bool) []user.User {
	users := make([]user.User, 0)
	for _, u := range repo.db.table {
		if u.IsActive && match(u) {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

func (repo *userRepository) FindByID(_ context.Context, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return copyUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FindByRole(_ context.Context, roles ...string) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		wanted[r] = struct{}{}
	}
	return repo.query(func(u *user.User) bool {
		_, ok := wanted[u.Role]
		return ok
	}), nil
}

func (repo *userRepository) QueryAll(_ context.Context) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(func(*user.User) bool { return true }), nil
}

func (repo *userRepository) ParentsOf(_ context.Context, studentID string) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	student, ok := repo.db.table[studentID]
	if !ok {
		return []user.User{}, nil
	}
	parentIDs := make(map[string]struct{}, len(student.ParentIDs))
	for _, id := range student.ParentIDs {
		parentIDs[id] = struct{}{}
	}
	return repo.query(func(u *user.User) bool {
		_, ok := parentIDs[u.ID]
		return ok
	}), nil
}

func (repo *userRepository) UpdateOrCreate(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.table[usr.ID]; ok {
		usr.CreatedAt = orig.CreatedAt
	}
	stored := copyUser(&usr)
	repo.db.table[usr.ID] = &stored
	return copyUser(&stored), nil
}

func copyUser(u *user.User) user.User {
	cp := *u
	if u.ParentIDs != nil {
		cp.ParentIDs = append([]string(nil), u.ParentIDs...)
	}
	return cp
}
