package main

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
)

func (cli *commandLine) rules(args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch args[0] {
	case "list":
		rules, err := cli.ruleSvc.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEVENT\tENABLED\tNAME")
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.ID, r.Event, r.Enabled, r.Name)
		}
		return w.Flush()
	case "seed":
		n, err := cli.ruleSvc.SeedDefaults(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "seeded %d default rule(s)\n", n)
		return nil
	case "enable", "disable", "delete":
	default:
		cli.printUsage()
		return errHelp
	}

	cmd := flag.NewFlagSet("rules "+args[0], flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	yes := cmd.Bool("yes", false, "Skip the confirmation prompt.")
	if err := cmd.Parse(args[1:]); err != nil {
		return err
	}
	if cmd.NArg() != 1 {
		cmd.Usage()
		return errHelp
	}
	id := cmd.Arg(0)

	switch args[0] {
	case "delete":
		rule, err := cli.ruleSvc.Get(ctx, id)
		if err != nil {
			return err
		}
		if !*yes {
			if err = cli.confirm(fmt.Sprintf("delete rule %q?", rule.Name)); err != nil {
				return err
			}
		}
		if err = cli.ruleSvc.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "deleted rule %s\n", id)
	default:
		rule, err := cli.ruleSvc.SetEnabled(ctx, id, args[0] == "enable")
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "rule %s enabled=%t\n", rule.ID, rule.Enabled)
	}
	return nil
}
