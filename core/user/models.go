package user

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-notify/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

	ErrNotFound = errors.New("user not found")
)

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	ParentIDs []string  `json:"parent_ids,omitempty" db:"-"` // students only
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

type (
	// Directory answers "who are the users" questions for recipient resolution.
	// Role and "all" lookups only return active users.
	Directory interface {
		FindByID(ctx context.Context, id string) (User, error)
		FindByRole(ctx context.Context, roles ...string) ([]User, error)
		QueryAll(ctx context.Context) ([]User, error)
		ParentsOf(ctx context.Context, studentID string) ([]User, error)
	}

	Repository interface {
		Directory

		// UpdateOrCreate upserts the user by ID and replaces its parent links.
		UpdateOrCreate(ctx context.Context, usr User) (User, error)
	}
)

// NewUser contains information needed to add a user to the directory.
type NewUser struct {
	ID        string   `json:"id" validate:"required,notblank"`
	Name      string   `json:"name" validate:"required,notblank"`
	Email     string   `json:"email" validate:"omitempty,email"`
	Role      string   `json:"role" validate:"required,oneof=admin teacher student parent"`
	ParentIDs []string `json:"parent_ids" validate:"omitempty,dive,required"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.ID = core.CleanString(nu.ID)
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.ParentIDs = core.UniqueStrings(nu.ParentIDs)
	return validate.Struct(nu)
}

func (nu NewUser) User() User {
	return User{
		ID:        nu.ID,
		Name:      nu.Name,
		Email:     nu.Email,
		Role:      nu.Role,
		IsActive:  true,
		ParentIDs: nu.ParentIDs,
		CreatedAt: time.Now().UTC(),
	}
}
