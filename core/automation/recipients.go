package automation

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/user"
)

type relatedResolver func(ctx context.Context, dir user.Directory, ev Event) ([]string, error)

// relatedRecipients is the event_related policy table. Events missing from it resolve to nobody.
var relatedRecipients = map[string]relatedResolver{
	EventHomeworkCreated:        studentsAndParents,
	EventHomeworkDue:            studentsAndParents,
	EventGradeUpdated:           studentAndParents,
	EventClubApproved:           clubRequester,
	EventClubMembershipApproved: clubMember,
	EventAnnouncementPublished:  everyone,
}

// Resolver turns a rule's recipient policy into concrete user ids.
type Resolver struct {
	dir user.Directory
}

func NewResolver(dir user.Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns distinct user ids in discovery order.
// Directory failures are reported as core.RecipientResolutionError.
func (r *Resolver) Resolve(ctx context.Context, policy RecipientPolicy, ev Event) ([]string, error) {
	var ids []string
	var err error

	switch policy.Type {
	case RecipientsAll:
		ids, err = everyone(ctx, r.dir, ev)
	case RecipientsRole:
		var users []user.User
		if users, err = r.dir.FindByRole(ctx, policy.Roles...); err == nil {
			ids = userIDs(users)
		}
	case RecipientsSpecific:
		ids = policy.UserIDs
	case RecipientsEventRelated:
		if resolve, ok := relatedRecipients[ev.Name()]; ok {
			ids, err = resolve(ctx, r.dir, ev)
		}
	default:
		err = fmt.Errorf("unknown recipient policy %q", policy.Type)
	}
	if err != nil {
		return nil, core.NewRecipientResolutionError(err, policy.Type)
	}
	return core.UniqueStrings(ids), nil
}

func everyone(ctx context.Context, dir user.Directory, _ Event) ([]string, error) {
	users, err := dir.QueryAll(ctx)
	if err != nil {
		return nil, err
	}
	return userIDs(users), nil
}

func studentsAndParents(ctx context.Context, dir user.Directory, _ Event) ([]string, error) {
	users, err := dir.FindByRole(ctx, user.RoleStudent, user.RoleParent)
	if err != nil {
		return nil, err
	}
	return userIDs(users), nil
}

func studentAndParents(ctx context.Context, dir user.Directory, ev Event) ([]string, error) {
	studentID := stringField(ev, "studentId")
	if studentID == "" {
		return nil, nil
	}
	parents, err := dir.ParentsOf(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return append([]string{studentID}, userIDs(parents)...), nil
}

func clubRequester(_ context.Context, _ user.Directory, ev Event) ([]string, error) {
	if id := stringField(ev, "requestedBy"); id != "" {
		return []string{id}, nil
	}
	return nil, nil
}

func clubMember(_ context.Context, _ user.Directory, ev Event) ([]string, error) {
	if id := stringField(ev, "userId"); id != "" {
		return []string{id}, nil
	}
	return nil, nil
}

func stringField(ev Event, key string) string {
	if v, ok := ev.Fields()[key].(string); ok {
		return v
	}
	return ""
}

func userIDs(users []user.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
