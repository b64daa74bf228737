package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
)

type (
	// DB is a process-local store used in development and tests.
	DB struct {
		user         *userTable
		notification *notificationTable
		rule         *ruleTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	notificationTable struct {
		sync.RWMutex
		table map[string]*notification.Notification
	}

	ruleTable struct {
		sync.RWMutex
		table map[string]*automation.Rule
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		notification: &notificationTable{table: make(map[string]*notification.Notification)},
		rule:         &ruleTable{table: make(map[string]*automation.Rule)},
	}
}
