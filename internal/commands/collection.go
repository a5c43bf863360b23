package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/store"
	"github.com/tildaslashalef/linkmark/internal/syncer"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// CollectionCommand returns the CLI command for managing collections
func CollectionCommand() *cli.Command {
	return &cli.Command{
		Name:    "collection",
		Aliases: []string{"col"},
		Usage:   "Manage bookmark collections",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a new collection",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "description",
						Aliases: []string{"d"},
						Usage:   "Collection description",
					},
					&cli.StringFlag{
						Name:  "visibility",
						Usage: "Collection visibility (private or public)",
						Value: store.VisibilityPrivate,
					},
				},
				Action: collectionAddAction,
			},
			{
				Name:      "update",
				Usage:     "Update a collection",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "description",
						Aliases: []string{"d"},
						Usage:   "New description",
					},
					&cli.StringFlag{
						Name:  "visibility",
						Usage: "New visibility (private or public)",
					},
				},
				Action: collectionUpdateAction,
			},
			{
				Name:      "rm",
				Usage:     "Delete a collection (bookmarks are kept)",
				ArgsUsage: "<name>",
				Action:    collectionDeleteAction,
			},
			{
				Name:   "list",
				Usage:  "List collections",
				Action: collectionListAction,
			},
		},
	}
}

func collectionAddAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	ctx := c.Context
	existing, err := application.Collections.GetCollectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("checking for existing collection: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("collection %q already exists", name)
	}

	visibility := c.String("visibility")
	if visibility != store.VisibilityPrivate && visibility != store.VisibilityPublic {
		return fmt.Errorf("invalid visibility %q", visibility)
	}

	col := store.NewCollection(name, c.String("description"), visibility)
	if err := application.Collections.CreateCollection(ctx, col); err != nil {
		return fmt.Errorf("saving collection: %w", err)
	}

	res := application.Sync.Sync(ctx, syncer.NewCollectionCreate(col.ID))
	printResult(res, fmt.Sprintf("Collection %q created and synced", name), fmt.Sprintf("Collection %q created (will sync later)", name))
	return nil
}

func collectionUpdateAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	ctx := c.Context
	col, err := application.Collections.GetCollectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}
	if col == nil {
		return fmt.Errorf("collection %q does not exist", name)
	}

	if c.IsSet("description") {
		col.Description = c.String("description")
	}
	if c.IsSet("visibility") {
		v := c.String("visibility")
		if v != store.VisibilityPrivate && v != store.VisibilityPublic {
			return fmt.Errorf("invalid visibility %q", v)
		}
		col.Visibility = v
	}

	col.MarkUpdated()
	if err := application.Collections.UpdateCollection(ctx, col); err != nil {
		return fmt.Errorf("updating collection: %w", err)
	}

	res := application.Sync.Sync(ctx, syncer.NewCollectionUpdate(col.ID))
	printResult(res, fmt.Sprintf("Collection %q updated and synced", name), fmt.Sprintf("Collection %q updated (will sync later)", name))
	return nil
}

func collectionDeleteAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("collection name is required")
	}

	ctx := c.Context
	col, err := application.Collections.GetCollectionByName(ctx, name)
	if err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}
	if col == nil {
		return fmt.Errorf("collection %q does not exist", name)
	}

	if err := application.Collections.DeleteCollection(ctx, col.ID); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}

	res := application.Sync.Sync(ctx, syncer.NewCollectionDelete(col.ID, col.RemoteID))
	printResult(res, fmt.Sprintf("Collection %q deleted", name), fmt.Sprintf("Collection %q deleted locally", name))
	return nil
}

func collectionListAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	collections, err := application.Collections.ListCollections(c.Context)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if len(collections) == 0 {
		utils.PrintInfo("No collections found")
		return nil
	}

	rows := make([][]string, 0, len(collections))
	for _, col := range collections {
		rows = append(rows, []string{
			utils.SyncMarker(col.IsDirty),
			col.Name,
			utils.TruncateString(col.Description, 40),
			col.Visibility,
			fmt.Sprintf("%d", col.LinkCount),
			utils.FormatRelativeTime(col.UpdatedAt),
		})
	}

	utils.PrintTable([]string{"", "Name", "Description", "Visibility", "Links", "Updated"}, rows)
	return nil
}
