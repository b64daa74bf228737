package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
	sqlxrepos "github.com/trezcool/masomo-notify/storage/database/sqlx"
	"github.com/trezcool/masomo-notify/tests"
)

type testCLI struct {
	*commandLine
	notifRepo notification.Repository
	buf       *bytes.Buffer
}

func setup(t *testing.T) testCLI {
	// set up DB & repos
	db := testutil.OpenDB(t)
	validate, _ := testutil.NewValidator()
	usrRepo := sqlxrepos.NewUserRepository(db)
	notifRepo := sqlxrepos.NewNotificationRepository(db)
	buf := new(bytes.Buffer)

	// start CLI
	return testCLI{
		commandLine: &commandLine{
			db:       db,
			validate: validate,
			usrRepo:  usrRepo,
			notifSvc: notification.NewService(notifRepo, usrRepo, validate, core.NotificationsConfig{}),
			ruleSvc:  automation.NewRuleService(sqlxrepos.NewRuleRepository(db), validate, time.Minute),
			out:      buf,
		},
		notifRepo: notifRepo,
		buf:       buf,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	failing    bool
	extra      interface{}
}

func runCLITests(t *testing.T, cli testCLI, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case tt.failing:
				if err == nil {
					t.Error("cli.run() expected an error")
				}
			default:
				if err != nil {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
	assert.Contains(t, cli.buf.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "digest_preferences", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing role", args: []string{"adduser", "-id", "p1"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-id", "p1", "-name", "Mama", "-role", "janitor"}, failing: true},
		{name: "invalid email", args: []string{"adduser", "-id", "p1", "-name", "Mama", "-role", "parent", "-email", "lol"}, failing: true},
		{name: "parents on a teacher", args: []string{"adduser", "-id", "t1", "-name", "Mwalimu", "-role", "teacher", "-parents", "p1"}, wantErrStr: "only students have parents"},
		{name: "add parent", args: []string{"adduser", "-id", "p1", "-name", "Mama", "-role", "parent", "-email", "Mama@Test.cd"}},
		{name: "add student", args: []string{"adduser", "-id", "s1", "-name", "Amani", "-role", "STUDENT", "-parents", "p1,p1"}},
	})

	parent, err := cli.usrRepo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "mama@test.cd", parent.Email)
	assert.True(t, parent.IsActive)

	student, err := cli.usrRepo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, student.Role)
	assert.Equal(t, []string{"p1"}, student.ParentIDs)

	t.Run("update keeps the creation date", func(t *testing.T) {
		require.NoError(t, cli.run([]string{"admin", "adduser", "-id", "s1", "-name", "Amani K.", "-role", "student"}))
		updated, err := cli.usrRepo.FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Amani K.", updated.Name)
		assert.Empty(t, updated.ParentIDs)
		assert.Equal(t, student.CreatedAt.Unix(), updated.CreatedAt.Unix())
	})
}

func Test_commandLine_sweep(t *testing.T) {
	cli := setup(t)
	testutil.CreateUser(t, cli.usrRepo, "s1", "Amani", user.RoleStudent)
	past := time.Now().Add(-time.Hour)
	testutil.CreateNotification(t, cli.notifRepo, "s1", "Expired", testutil.WithExpiresAt(past))
	testutil.CreateNotification(t, cli.notifRepo, "s1", "Current", testutil.WithExpiresAt(time.Now().Add(time.Hour)))
	testutil.CreateNotification(t, cli.notifRepo, "s1", "Forever")

	require.NoError(t, cli.run([]string{"admin", "sweep"}))
	assert.Equal(t, "deleted 1 expired notification(s)\n", cli.buf.String())

	count, err := cli.notifSvc.UnreadCount(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func Test_commandLine_rules(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	isTerminal := false
	isTerminalFunc = func(fd int) bool { return isTerminal }
	t.Cleanup(func() { confirmInput = strings.NewReader("") })

	require.NoError(t, cli.run([]string{"admin", "rules", "seed"}))
	rules, err := cli.ruleSvc.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, len(automation.DefaultRules()))
	id := rules[0].ID

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"rules"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"rules", "lol"}, wantErr: errHelp},
		{name: "enable without id", args: []string{"rules", "enable"}, wantErr: errHelp},
		{name: "disable missing", args: []string{"rules", "disable", "missing"}, wantErr: core.ErrNotFound},
		{name: "delete missing", args: []string{"rules", "delete", "-yes", "missing"}, wantErr: core.ErrNotFound},
		{name: "list", args: []string{"rules", "list"}},
		{name: "seed is idempotent", args: []string{"rules", "seed"}},
		{name: "disable", args: []string{"rules", "disable", id}},
		{name: "delete without a terminal", args: []string{"rules", "delete", id}, wantErr: errAborted},
	})
	assert.Contains(t, cli.buf.String(), "seeded 0 default rule(s)")

	rule, err := cli.ruleSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)

	t.Run("delete declined", func(t *testing.T) {
		isTerminal = true
		confirmInput = strings.NewReader("n\n")
		assert.Equal(t, errAborted, cli.run([]string{"admin", "rules", "delete", id}))
	})

	t.Run("delete confirmed", func(t *testing.T) {
		isTerminal = true
		confirmInput = strings.NewReader("y\n")
		require.NoError(t, cli.run([]string{"admin", "rules", "delete", id}))
		_, err := cli.ruleSvc.Get(ctx, id)
		assert.Equal(t, core.ErrNotFound, err)
	})

	t.Run("enable", func(t *testing.T) {
		other := rules[1]
		require.NoError(t, cli.run([]string{"admin", "rules", "disable", other.ID}))
		require.NoError(t, cli.run([]string{"admin", "rules", "enable", other.ID}))
		rule, err := cli.ruleSvc.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.True(t, rule.Enabled)
	})
}
