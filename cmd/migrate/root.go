package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/database"
)

// migrator is the part of *database.DB the commands drive
type migrator interface {
	RunMigrations(path string) error
	MigrateDown(path string) error
	MigrateToVersion(path string, version uint) error
	Close() error
}

type openFunc func(cfg *config.DatabaseConfig, log zerolog.Logger) (migrator, error)

func openDatabase(cfg *config.DatabaseConfig, log zerolog.Logger) (migrator, error) {
	db, err := database.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// cli carries the state shared by all subcommands
type cli struct {
	log  zerolog.Logger
	open openFunc

	// set during PersistentPreRunE
	db *config.DatabaseConfig

	// persistent flags
	path string
}

func newRootCmd(log zerolog.Logger, open openFunc) *cobra.Command {
	c := &cli{log: log, open: open}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the community-api database schema",
		Long: `migrate applies and rolls back the community-api schema.

Connection settings come from the same DB_* environment variables the server
reads. The JWT secret and other server settings are not required.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			db, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			c.db = db
			if c.path == "" {
				c.path = db.MigrationsPath
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.path, "path", "", "migrations directory (default: MIGRATIONS_PATH)")

	root.AddCommand(newUpCmd(c), newDownCmd(c), newGotoCmd(c))
	return root
}

// withDB opens the database, runs fn and always closes the connection
func (c *cli) withDB(fn func(m migrator) error) error {
	m, err := c.open(c.db, c.log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return fn(m)
}
