package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
)

// storageErr maps driver errors onto the core error taxonomy.
func storageErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Cause(err) == sql.ErrNoRows {
		return core.ErrNotFound
	}
	return core.NewStorageError(err, op)
}

// whereClause joins conditions with AND; an empty list matches everything.
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// inClause expands `column IN (?)` for values.
func inClause(column string, values []string) (string, []interface{}, error) {
	return sqlx.In(column+" IN (?)", values)
}

func rowsAffected(res sql.Result, err error, op string) (int, error) {
	if err != nil {
		return 0, storageErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err, op)
	}
	return int(n), nil
}
