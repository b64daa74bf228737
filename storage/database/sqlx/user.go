package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/user"
)

const userColumns = `id, name, email, role, is_active, created_at`

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func userErr(err error, op string) error {
	if err = storageErr(err, op); err == core.ErrNotFound {
		return user.ErrNotFound
	}
	return err
}

// attachParents loads the parent links of every student in users.
func attachParents(ctx context.Context, db core.DBExecutor, users []user.User) error {
	var studentIDs []string
	idx := make(map[string]int)
	for i, u := range users {
		if u.IsStudent() {
			studentIDs = append(studentIDs, u.ID)
			idx[u.ID] = i
		}
	}
	if len(studentIDs) == 0 {
		return nil
	}

	in, args, err := inClause("student_id", studentIDs)
	if err != nil {
		return userErr(err, "load parent links")
	}
	var links []struct {
		StudentID string `db:"student_id"`
		ParentID  string `db:"parent_id"`
	}
	q := db.Rebind(`SELECT student_id, parent_id FROM user_parents WHERE ` + in + ` ORDER BY parent_id`)
	if err = db.SelectContext(ctx, &links, q, args...); err != nil {
		return userErr(err, "load parent links")
	}
	for _, l := range links {
		i := idx[l.StudentID]
		users[i].ParentIDs = append(users[i].ParentIDs, l.ParentID)
	}
	return nil
}

func (repo *userRepository) query(ctx context.Context, op, where string, args ...interface{}) ([]user.User, error) {
	users := make([]user.User, 0)
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE is_active = ?` + where + ` ORDER BY created_at, id`)
	if err := repo.db.SelectContext(ctx, &users, q, append([]interface{}{true}, args...)...); err != nil {
		return nil, userErr(err, op)
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}
	if err := attachParents(ctx, repo.db, users); err != nil {
		return nil, err
	}
	return users, nil
}

func findByID(ctx context.Context, db core.DBExecutor, id string) (user.User, error) {
	var usr user.User
	q := db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := db.GetContext(ctx, &usr, q, id); err != nil {
		return user.User{}, userErr(err, "find user")
	}
	usr.CreatedAt = usr.CreatedAt.UTC()
	users := []user.User{usr}
	if err := attachParents(ctx, db, users); err != nil {
		return user.User{}, err
	}
	return users[0], nil
}

func (repo *userRepository) FindByID(ctx context.Context, id string) (user.User, error) {
	return findByID(ctx, repo.db, id)
}

func (repo *userRepository) FindByRole(ctx context.Context, roles ...string) ([]user.User, error) {
	if len(roles) == 0 {
		return []user.User{}, nil
	}
	in, args, err := inClause("role", roles)
	if err != nil {
		return nil, userErr(err, "find users by role")
	}
	return repo.query(ctx, "find users by role", " AND "+in, args...)
}

func (repo *userRepository) QueryAll(ctx context.Context) ([]user.User, error) {
	return repo.query(ctx, "query users", "")
}

func (repo *userRepository) ParentsOf(ctx context.Context, studentID string) ([]user.User, error) {
	return repo.query(ctx, "find parents",
		" AND id IN (SELECT parent_id FROM user_parents WHERE student_id = ?)", studentID)
}

func (repo *userRepository) UpdateOrCreate(ctx context.Context, usr user.User) (user.User, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return user.User{}, userErr(err, "begin upsert user")
	}
	defer func() { _ = tx.Rollback() }()

	usr.CreatedAt = usr.CreatedAt.UTC()
	upsert := tx.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, email = excluded.email, role = excluded.role, is_active = excluded.is_active`)
	if _, err = tx.ExecContext(ctx, upsert, usr.ID, usr.Name, usr.Email, usr.Role, usr.IsActive, usr.CreatedAt); err != nil {
		return user.User{}, userErr(err, "upsert user")
	}
	if err = replaceParents(ctx, tx, usr.ID, usr.ParentIDs); err != nil {
		return user.User{}, err
	}

	stored, err := findByID(ctx, tx, usr.ID)
	if err != nil {
		return user.User{}, err
	}
	if err = tx.Commit(); err != nil {
		return user.User{}, userErr(err, "commit upsert user")
	}
	return stored, nil
}

func replaceParents(ctx context.Context, tx *sqlx.Tx, studentID string, parentIDs []string) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM user_parents WHERE student_id = ?`), studentID); err != nil {
		return userErr(err, "clear parent links")
	}
	ins := tx.Rebind(`INSERT INTO user_parents (student_id, parent_id) VALUES (?, ?)`)
	for _, parentID := range parentIDs {
		if _, err := tx.ExecContext(ctx, ins, studentID, parentID); err != nil {
			return userErr(err, "link parent")
		}
	}
	return nil
}
