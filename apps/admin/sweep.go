package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) sweep() error {
	n, err := cli.notifSvc.ExpireSweep(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %d expired notification(s)\n", n)
	return nil
}
