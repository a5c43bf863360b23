package commands

import (
	"fmt"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/store"
	"github.com/tildaslashalef/linkmark/internal/syncer"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// AddCommand returns the CLI command for saving a new bookmark
func AddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Save a new bookmark",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Title for the bookmark",
			},
			&cli.StringFlag{
				Name:  "tags",
				Usage: "Comma-separated tags",
			},
			&cli.StringFlag{
				Name:    "collection",
				Aliases: []string{"c"},
				Usage:   "Collection to add the bookmark to",
			},
		},
		Action: addAction,
	}
}

func addAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	rawURL := c.Args().First()
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}

	ctx := c.Context

	existing, err := application.Links.GetLinkByURL(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("checking for existing link: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("link already exists (%s)", existing.ID)
	}

	collectionName := c.String("collection")
	if collectionName != "" {
		col, err := application.Collections.GetCollectionByName(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("resolving collection: %w", err)
		}
		if col == nil {
			return fmt.Errorf("collection %q does not exist (create it with 'linkmark collection add')", collectionName)
		}
	}

	link := store.NewLink(rawURL, c.String("title"), utils.ParseTags(c.String("tags")), collectionName)
	if err := application.Links.CreateLink(ctx, link); err != nil {
		return fmt.Errorf("saving link: %w", err)
	}

	res := application.Sync.Sync(ctx, syncer.NewLinkCreate(link.ID))
	printResult(res, "Bookmark saved and synced", "Bookmark saved (will sync later)")
	return nil
}

// printResult renders a sync result for single-entity commands
func printResult(res *syncer.Result, syncedMsg, queuedMsg string) {
	switch res.Status {
	case syncer.StatusSuccess:
		utils.PrintSuccess(syncedMsg)
	case syncer.StatusQueued:
		utils.PrintSuccess(queuedMsg)
	case syncer.StatusPartialFailure:
		utils.PrintWarning("Partially synced: " + res.Message)
	default:
		utils.PrintWarning("Saved locally, sync failed: " + res.Message)
	}
}
