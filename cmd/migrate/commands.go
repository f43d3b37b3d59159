package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUpCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(func(m migrator) error {
				return m.RunMigrations(c.path)
			})
		},
	}
}

func newDownCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(func(m migrator) error {
				return m.MigrateDown(c.path)
			})
		},
	}
}

func newGotoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "goto <version>",
		Short:   "Migrate up or down to a specific version",
		Example: "  migrate goto 2",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			return c.withDB(func(m migrator) error {
				return m.MigrateToVersion(c.path, version)
			})
		},
	}
}

func parseVersion(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return uint(v), nil
}
