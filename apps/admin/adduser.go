package main

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-notify/core/user"
)

// addUser updates or creates a user.User in the directory.
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr := nu.User()
	if !usr.IsStudent() && len(usr.ParentIDs) > 0 {
		return fmt.Errorf("only students have parents")
	}

	ctx := context.Background()
	if existing, err := cli.usrRepo.FindByID(ctx, usr.ID); err == nil {
		usr.CreatedAt = existing.CreatedAt
	} else if err != user.ErrNotFound {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreate(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "saved %s %q (%s)\n", usr.Role, usr.ID, usr.Name)
	return nil
}
