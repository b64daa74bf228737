package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/masomo-notify/core/automation"
	"github.com/trezcool/masomo-notify/core/notification"
	"github.com/trezcool/masomo-notify/core/user"
)

var (
	isTerminalFunc = term.IsTerminal // mockable
	confirmInput   io.Reader = os.Stdin

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	db       *sqlx.DB
	validate *validator.Validate
	usrRepo  user.Repository
	notifSvc *notification.Service
	ruleSvc  *automation.RuleService
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                               - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -id ID -name NAME -role ROLE [-email EMAIL] [-parents ID,ID] - add or update a directory user")
	fmt.Fprintln(cli.out, "  sweep                                                - delete expired notifications")
	fmt.Fprintln(cli.out, "  rules list|seed                                      - list or seed automation rules")
	fmt.Fprintln(cli.out, "  rules enable|disable|delete [-yes] ID                - change an automation rule")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserID := addUserCmd.String("id", "", "The user's ID in the school directory.")
	addUserName := addUserCmd.String("name", "", "The user's display name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", "", "One of: "+strings.Join(user.AllRoles, ", "))
	addUserParents := addUserCmd.String("parents", "", "Comma separated parent IDs (students only).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserID == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		var parents []string
		if *addUserParents != "" {
			parents = strings.Split(*addUserParents, ",")
		}
		return cli.addUser(user.NewUser{
			ID:        *addUserID,
			Name:      *addUserName,
			Email:     *addUserEmail,
			Role:      *addUserRole,
			ParentIDs: parents,
		})
	case "sweep":
		return cli.sweep()
	case "rules":
		return cli.rules(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a yes/no question on an interactive stdin. Non-interactive sessions must pass -yes.
func (cli *commandLine) confirm(question string) error {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return errAborted
	}
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(confirmInput).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errAborted
}
