package commands

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// ListCommand returns the CLI command for listing bookmarks
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List saved bookmarks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "collection",
				Aliases: []string{"c"},
				Usage:   "Only show bookmarks from this collection",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of bookmarks to show",
				Value: 50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of bookmarks to skip",
			},
		},
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	links, err := application.Links.ListLinks(c.Context, c.String("collection"), c.Int("limit"), c.Int("offset"))
	if err != nil {
		return fmt.Errorf("listing links: %w", err)
	}

	if len(links) == 0 {
		utils.PrintInfo("No bookmarks found")
		return nil
	}

	rows := make([][]string, 0, len(links))
	for _, link := range links {
		rows = append(rows, []string{
			utils.SyncMarker(link.IsDirty),
			link.ID,
			utils.TruncateString(link.URL, 48),
			utils.TruncateString(link.Title, 32),
			link.Collection,
			strings.Join(link.Tags, ", "),
			utils.FormatRelativeTime(link.UpdatedAt),
		})
	}

	utils.PrintTable([]string{"", "ID", "URL", "Title", "Collection", "Tags", "Updated"}, rows)
	return nil
}
