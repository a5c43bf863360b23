package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/commands"
)

// Version information - populated at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:  "linkmark",
		Usage: "Offline-first bookmark manager",
		Description: "Linkmark keeps your bookmarks in a local database and syncs them\n" +
			"with a remote bookmark server, immediately or on demand.",
		Version: Version,
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Before: func(c *cli.Context) error {
			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			if application, ok := c.App.Metadata["app"].(*app.App); ok {
				return application.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.InitCommand(),
			commands.AddCommand(),
			commands.ListCommand(),
			commands.MoveCommand(),
			commands.RemoveCommand(),
			commands.CollectionCommand(),
			commands.ImportCommand(),
			commands.SyncCommand(),
		},
		Action: func(c *cli.Context) error {
			// default action lists saved bookmarks
			return commands.ListCommand().Action(c)
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
