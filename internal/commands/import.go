package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/store"
	"github.com/tildaslashalef/linkmark/internal/syncer"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// importEntry is one bookmark in an import file
type importEntry struct {
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Collection string   `json:"collection,omitempty"`
}

// ImportCommand returns the CLI command for importing bookmarks from a JSON file
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import bookmarks from a JSON file",
		ArgsUsage: "<file>",
		Description: "Reads a JSON array of bookmarks ({url, title, tags, collection}) and " +
			"saves them locally before pushing. A bookmark whose push fails stays " +
			"marked for the next sync pass.",
		Action: importAction,
	}
}

func importAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("import file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading import file: %w", err)
	}

	var entries []importEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing import file: %w", err)
	}
	if len(entries) == 0 {
		utils.PrintInfo("Nothing to import")
		return nil
	}

	ctx := c.Context

	// insert everything locally first, dirty, so a failed push is
	// recoverable by a later sync pass
	linkIDs := make([]string, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		if entry.URL == "" {
			skipped++
			continue
		}
		existing, err := application.Links.GetLinkByURL(ctx, entry.URL)
		if err != nil {
			return fmt.Errorf("checking for existing link: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		link := store.NewLink(entry.URL, entry.Title, entry.Tags, entry.Collection)
		if err := application.Links.CreateLink(ctx, link); err != nil {
			loggy.Warn("Failed to save imported link", "url", entry.URL, "error", err)
			skipped++
			continue
		}
		linkIDs = append(linkIDs, link.ID)
	}

	if skipped > 0 {
		utils.PrintInfo(fmt.Sprintf("Skipped %d entries (empty, duplicate or unsaveable)", skipped))
	}
	if len(linkIDs) == 0 {
		utils.PrintInfo("No new bookmarks to import")
		return nil
	}

	op := syncer.NewImport(linkIDs, func(completed, total int) {
		fmt.Printf("\rImporting... %d/%d", completed, total)
		if completed == total {
			fmt.Println()
		}
	})

	res := application.Sync.Sync(ctx, op)
	switch res.Status {
	case syncer.StatusSuccess:
		utils.PrintSuccess(fmt.Sprintf("Imported and synced %d bookmark(s)", len(linkIDs)))
	case syncer.StatusQueued:
		utils.PrintSuccess(fmt.Sprintf("Imported %d bookmark(s) (will sync later)", len(linkIDs)))
	case syncer.StatusPartialFailure:
		utils.PrintWarning(fmt.Sprintf("Imported %d bookmark(s), %d failed to sync and will be retried: %s",
			len(linkIDs)-len(res.FailedIDs), len(res.FailedIDs), res.Message))
	default:
		utils.PrintWarning("Import saved locally but sync failed: " + res.Message)
	}
	return nil
}
