package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/syncer"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// MoveCommand returns the CLI command for moving bookmarks between collections
func MoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "mv",
		Usage:     "Move bookmarks to a collection",
		ArgsUsage: "<id-or-url>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Target collection name (empty string removes the assignment)",
				Required: true,
			},
		},
		Action: mvAction,
	}
}

func mvAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	refs := c.Args().Slice()
	if len(refs) == 0 {
		return fmt.Errorf("at least one bookmark id or url is required")
	}

	target := c.String("to")
	if target != "" {
		col, err := application.Collections.GetCollectionByName(c.Context, target)
		if err != nil {
			return fmt.Errorf("resolving collection: %w", err)
		}
		if col == nil {
			return fmt.Errorf("collection %q does not exist", target)
		}
	}

	// unresolvable references still become operations so the result reports
	// them in the failed set alongside remote failures
	ops := make([]*syncer.Operation, 0, len(refs))
	for _, ref := range refs {
		link, err := resolveLink(c, application, ref)
		if err != nil {
			ops = append(ops, syncer.NewLinkMove(ref, target))
			continue
		}
		ops = append(ops, syncer.NewLinkMove(link.ID, target))
	}

	var res *syncer.Result
	if len(ops) == 1 {
		res = application.Sync.Sync(c.Context, ops[0])
	} else {
		res = application.Sync.Sync(c.Context, syncer.NewBulk(ops, func(completed, total int) {
			fmt.Printf("\rMoving bookmarks... %d/%d", completed, total)
			if completed == total {
				fmt.Println()
			}
		}))
	}

	switch res.Status {
	case syncer.StatusSuccess:
		utils.PrintSuccess(fmt.Sprintf("Moved %d bookmark(s) to %q", len(ops), target))
	case syncer.StatusQueued:
		utils.PrintSuccess(fmt.Sprintf("Moved %d bookmark(s) to %q (will sync later)", len(ops), target))
	case syncer.StatusPartialFailure:
		utils.PrintWarning(fmt.Sprintf("Moved some bookmarks, %d failed: %s", len(res.FailedIDs), res.Message))
		for _, id := range res.FailedIDs {
			utils.PrintError("  " + id)
		}
	default:
		utils.PrintError("Move failed: " + res.Message)
	}
	return nil
}
