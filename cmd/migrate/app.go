package main

import (
	"fmt"
	"io/fs"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/ordersync/backend/internal/infrastructure/migration"
)

type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	GoTo(version uint) error
	Status() (migration.Status, error)
	Force(version int) error
	Drop() error
}

// openFunc connects a migrator for one command; the returned func releases it
type openFunc func(c *cli.Context, source fs.FS) (schemaMigrator, func(), error)

func newApp(open openFunc, embedded fs.FS) *cli.App {
	source := func(c *cli.Context) fs.FS {
		return migration.SourceFS(c.String("path"), embedded)
	}
	withMigrator := func(action func(c *cli.Context, m schemaMigrator) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			m, closeFn, err := open(c, source(c))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer closeFn()
			return action(c, m)
		}
	}

	return &cli.App{
		Name:  "migrate",
		Usage: "manage the order sync postgres schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Usage: "read migrations from this directory instead of the embedded set"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file", EnvVars: []string{"ORDERSYNC_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "apply all pending migrations",
				Action: withMigrator(func(_ *cli.Context, m schemaMigrator) error { return m.Up() }),
			},
			{
				Name:  "down",
				Usage: "roll back every migration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "confirm", Usage: "required; removes all order sync tables"},
				},
				Action: withMigrator(runDown),
			},
			{
				Name:      "step",
				Usage:     "apply n migrations, or roll back n with --back",
				ArgsUsage: "<n>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "back", Usage: "roll back instead of applying"},
				},
				Action: withMigrator(runStep),
			},
			{
				Name:      "goto",
				Usage:     "migrate up or down to a version",
				ArgsUsage: "<version>",
				Action:    withMigrator(runGoTo),
			},
			{
				Name:    "status",
				Aliases: []string{"version"},
				Usage:   "show the applied and latest versions",
				Action:  withMigrator(runStatus),
			},
			{
				Name:      "force",
				Usage:     "record a version as applied without running it",
				ArgsUsage: "<version>",
				Action:    withMigrator(runForce),
			},
			{
				Name:  "drop",
				Usage: "drop every table in the database",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "confirm", Usage: "required; destroys all data"},
				},
				Action: withMigrator(runDrop),
			},
			{
				Name:      "create",
				Usage:     "write a new numbered up/down migration pair",
				ArgsUsage: "<name> [description]",
				Action:    runCreate,
			},
			{
				Name:  "list",
				Usage: "list available migrations",
				Action: func(c *cli.Context) error {
					names, err := migration.ListMigrations(source(c))
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(c.App.Writer, name)
					}
					return nil
				},
			},
		},
	}
}

func runDown(c *cli.Context, m schemaMigrator) error {
	if !c.Bool("confirm") {
		return cli.Exit("refusing to roll back every migration without --confirm", 2)
	}
	return m.Down()
}

func runStep(c *cli.Context, m schemaMigrator) error {
	n, err := strconv.Atoi(c.Args().First())
	if err != nil || n <= 0 {
		return cli.Exit("step needs a positive count", 2)
	}
	if c.Bool("back") {
		n = -n
	}
	return m.Steps(n)
}

func runGoTo(c *cli.Context, m schemaMigrator) error {
	version, err := strconv.ParseUint(c.Args().First(), 10, 32)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid version %q", c.Args().First()), 2)
	}
	return m.GoTo(uint(version))
}

func runStatus(c *cli.Context, m schemaMigrator) error {
	s, err := m.Status()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "version=%d latest=%d pending=%d dirty=%t\n", s.Version, s.Latest, s.Pending, s.Dirty)
	if s.Dirty {
		return cli.Exit("schema is dirty; fix the failed migration and run force", 1)
	}
	return nil
}

func runForce(c *cli.Context, m schemaMigrator) error {
	version, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid version %q", c.Args().First()), 2)
	}
	return m.Force(version)
}

func runDrop(c *cli.Context, m schemaMigrator) error {
	if !c.Bool("confirm") {
		return cli.Exit("refusing to drop the database without --confirm", 2)
	}
	return m.Drop()
}

func runCreate(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("create needs a migration name", 2)
	}
	dir := c.String("path")
	if dir == "" {
		dir = "migrations"
	}
	mf, err := migration.CreateMigration(dir, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, mf.UpPath)
	fmt.Fprintln(c.App.Writer, mf.DownPath)
	return nil
}
