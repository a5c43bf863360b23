package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/store"
	"github.com/tildaslashalef/linkmark/internal/syncer"
)

// RemoveCommand returns the CLI command for deleting a bookmark
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Delete a bookmark",
		ArgsUsage: "<id-or-url>",
		Action:    rmAction,
	}
}

// resolveLink finds a link by local ID or by URL
func resolveLink(c *cli.Context, application *app.App, ref string) (*store.Link, error) {
	link, err := application.Links.GetLink(c.Context, ref)
	if err == nil {
		return link, nil
	}

	link, urlErr := application.Links.GetLinkByURL(c.Context, ref)
	if urlErr != nil {
		return nil, urlErr
	}
	if link == nil {
		return nil, fmt.Errorf("no bookmark matches %q", ref)
	}
	return link, nil
}

func rmAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ref := c.Args().First()
	if ref == "" {
		return fmt.Errorf("bookmark id or url is required")
	}

	link, err := resolveLink(c, application, ref)
	if err != nil {
		return err
	}

	// delete locally first; the remote delete follows from the operation's
	// carried remote id
	if err := application.Links.DeleteLink(c.Context, link.ID); err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}

	res := application.Sync.Sync(c.Context, syncer.NewLinkDelete(link.ID, link.RemoteID))
	printResult(res, "Bookmark deleted", "Bookmark deleted locally")
	return nil
}
