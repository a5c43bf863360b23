package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/app"
	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/loggy"
	"github.com/tildaslashalef/linkmark/internal/syncer"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

// SyncCommand returns the CLI command for syncing with the bookmark server
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:        "sync",
		Usage:       "Sync bookmarks with the remote server",
		Description: "Without a subcommand, runs a full sync: push local changes, then pull remote state.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "resolve",
				Usage: "Push local changes first, then overwrite local state with the server's",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:        "up",
				Usage:       "Push local changes to the server",
				Description: "Pushes every dirty or never-synced collection and bookmark.",
				Action:      syncUpAction,
			},
			{
				Name:        "down",
				Usage:       "Pull remote state into the local store",
				Description: "Refuses to run while unpushed local changes exist, unless --force is given.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite local collections with the server's state",
					},
				},
				Action: syncDownAction,
			},
			{
				Name:   "status",
				Usage:  "Show sync status",
				Action: syncStatusAction,
			},
			{
				Name:      "mode",
				Usage:     "Show or change the sync mode",
				ArgsUsage: "[manual|immediate]",
				Action:    syncModeAction,
			},
			{
				Name:  "account",
				Usage: "Manage server account connection",
				Subcommands: []*cli.Command{
					{
						Name:  "link",
						Usage: "Link to a bookmark server account",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "token",
								Usage:    "Personal access token from the web interface",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "server",
								Usage: "Server URL (defaults to the configured one)",
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "A name for this client (e.g. 'Work Laptop')",
							},
						},
						Action: linkAccountAction,
					},
					{
						Name:   "unlink",
						Usage:  "Unlink from the server account",
						Action: unlinkAccountAction,
					},
					{
						Name:   "status",
						Usage:  "Check account connection status",
						Action: accountStatusAction,
					},
				},
			},
		},
		Action: syncAction,
	}
}

// printStats renders a reconciliation summary
func printStats(stats *syncer.Stats) {
	if stats == nil {
		return
	}
	if stats.CollectionsPushed > 0 || stats.LinksPushed > 0 {
		utils.PrintSuccess(fmt.Sprintf("Pushed %d collection(s), %d bookmark(s)", stats.CollectionsPushed, stats.LinksPushed))
	}
	if stats.CollectionsPulled > 0 || stats.LinksPulled > 0 {
		utils.PrintSuccess(fmt.Sprintf("Pulled %d collection(s), %d bookmark(s)", stats.CollectionsPulled, stats.LinksPulled))
	}
	if stats.Deleted > 0 {
		utils.PrintSuccess(fmt.Sprintf("Deleted %d remote item(s)", stats.Deleted))
	}
	for _, msg := range stats.Errors {
		utils.PrintError("  " + msg)
	}
}

// reportSyncError renders reconciliation failures, giving conflicts a
// friendlier message
func reportSyncError(err error) error {
	var conflict *syncer.ConflictError
	if errors.As(err, &conflict) {
		utils.PrintWarning(conflict.Error())
		return nil
	}
	return err
}

func syncAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Client.HasToken() {
		return fmt.Errorf("sync is not configured. Use 'linkmark sync account link --token <token>' first")
	}

	loggy.Info("Starting full sync", "resolve", c.Bool("resolve"))
	stats, err := application.Sync.FullSync(c.Context, syncer.NewToken(), c.Bool("resolve"))
	printStats(stats)
	if err != nil {
		return reportSyncError(err)
	}

	if stats.Failed > 0 {
		utils.PrintWarning(fmt.Sprintf("Sync finished with %d failure(s)", stats.Failed))
	} else {
		utils.PrintSuccess("Sync complete")
	}
	return nil
}

func syncUpAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	stats, err := application.Sync.SyncUp(c.Context, syncer.NewToken())
	printStats(stats)
	if err != nil {
		return err
	}

	if stats.CollectionsPushed == 0 && stats.LinksPushed == 0 && stats.Failed == 0 {
		utils.PrintInfo("Nothing to push")
	}
	return nil
}

func syncDownAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	stats, err := application.Sync.SyncDown(c.Context, syncer.NewToken(), c.Bool("force"))
	printStats(stats)
	if err != nil {
		return reportSyncError(err)
	}

	utils.PrintSuccess("Pull complete")
	return nil
}

func syncStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	report, err := application.Sync.Status(c.Context)
	if err != nil {
		return fmt.Errorf("loading sync status: %w", err)
	}

	utils.PrintHeading("Sync Status")
	utils.PrintKeyValue("Mode", string(report.Mode))
	utils.PrintKeyValue("Pending bookmarks", fmt.Sprintf("%d", report.DirtyLinks))
	utils.PrintKeyValue("Pending collections", fmt.Sprintf("%d", report.DirtyCollections))
	if report.ActiveOperations > 0 {
		utils.PrintKeyValue("Active operations", fmt.Sprintf("%d", report.ActiveOperations))
	}
	if report.LastFullSync != nil {
		utils.PrintKeyValue("Last full sync", utils.FormatRelativeTime(*report.LastFullSync))
	} else {
		utils.PrintKeyValue("Last full sync", "never")
	}

	if len(report.RecentLogs) > 0 {
		fmt.Println("")
		utils.PrintHeading("Recent Activity")
		rows := make([][]string, 0, len(report.RecentLogs))
		for _, log := range report.RecentLogs {
			status := "ok"
			if !log.Success {
				status = log.ErrorType
			}
			rows = append(rows, []string{
				log.SyncType,
				log.EntityType,
				status,
				fmt.Sprintf("%d", log.ItemsSynced),
				utils.FormatRelativeTime(log.StartedAt),
				utils.TruncateString(log.ErrorMessage, 40),
			})
		}
		utils.PrintTable([]string{"Type", "Entity", "Status", "Items", "When", "Error"}, rows)
	}
	return nil
}

func syncModeAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	arg := c.Args().First()
	if arg == "" {
		utils.PrintKeyValue("Sync mode", string(application.Sync.Mode(c.Context)))
		return nil
	}

	mode, err := syncer.ParseMode(strings.ToLower(arg))
	if err != nil {
		return err
	}
	if err := application.Sync.SetMode(c.Context, mode); err != nil {
		return fmt.Errorf("saving sync mode: %w", err)
	}

	utils.PrintSuccess("Sync mode set to " + string(mode))
	return nil
}

func linkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	token := c.String("token")

	serverURL := c.String("server")
	if serverURL == "" {
		serverURL = application.Config.Server.URL
	}
	if serverURL == "" {
		return fmt.Errorf("no server URL configured; pass --server or set LINKMARK_SERVER_URL")
	}

	clientName := c.String("name")
	if clientName == "" {
		clientName = application.Config.Server.ClientName
	}

	application.Client.SetBaseURL(serverURL)
	application.Client.SetToken(token)

	valid, err := application.Client.VerifyToken(ctx)
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid token")
	}

	if err := application.Settings.SetSetting(ctx, config.KeyServerToken, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := application.Settings.SetSetting(ctx, config.KeyServerURL, serverURL); err != nil {
		loggy.Warn("Failed to save server URL to settings", "error", err)
	}
	if clientName != "" {
		if err := application.Settings.SetSetting(ctx, config.KeyClientName, clientName); err != nil {
			loggy.Warn("Failed to save client name to settings", "error", err)
		}
	}
	if err := application.Settings.SetSetting(ctx, config.KeySyncEnabled, "true"); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}

	utils.PrintSuccess("Successfully linked to " + serverURL)
	return nil
}

func unlinkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	ctx := c.Context
	if err := application.Settings.DeleteSetting(ctx, config.KeyServerToken); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	if err := application.Settings.SetSetting(ctx, config.KeySyncEnabled, "false"); err != nil {
		loggy.Warn("Failed to save enabled status to settings", "error", err)
	}
	application.Client.SetToken("")

	utils.PrintSuccess("Successfully unlinked from the bookmark server")
	return nil
}

func accountStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if !application.Client.HasToken() {
		utils.PrintError("Not linked to a bookmark server")
		return nil
	}

	valid, err := application.Client.VerifyToken(c.Context)
	if err != nil {
		loggy.Warn("Error verifying token", "error", err)
		utils.PrintWarning("Could not reach the server: " + err.Error())
		return nil
	}

	if valid {
		utils.PrintHeading("Account Linked")
		utils.PrintKeyValue("Server URL", application.Config.Server.URL)
		utils.PrintKeyValue("Client name", application.Config.Server.ClientName)
	} else {
		utils.PrintError("Token is invalid or expired")
	}
	return nil
}
