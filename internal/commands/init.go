package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/linkmark/internal/config"
	"github.com/tildaslashalef/linkmark/internal/database"
	"github.com/tildaslashalef/linkmark/internal/utils"
)

const defaultEnvFile = `# linkmark configuration
# Uncomment and adjust values as needed.

# LINKMARK_SERVER_URL=https://linkmark.example.com
# LINKMARK_SERVER_TOKEN=
# LINKMARK_SYNC_MODE=manual
# LINKMARK_SYNC_MAX_RETRIES=3
# LINKMARK_SYNC_MAX_CONCURRENCY=3
# LINKMARK_LOG_LEVEL=info
`

// InitCommand returns the CLI command for initializing linkmark
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the linkmark environment",
		Description: "Sets up the linkmark environment including the configuration directory " +
			"and database with necessary tables. Use this command for first-time setup " +
			"or to update your database schema after upgrading linkmark.",
		Action: func(c *cli.Context) error {
			utils.PrintHeading("Initializing linkmark")

			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}

			configDir := filepath.Join(homeDir, ".linkmark")
			utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

			if err := os.MkdirAll(configDir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			configFilePath := filepath.Join(configDir, ".env")
			if _, err := os.Stat(configFilePath); os.IsNotExist(err) {
				utils.PrintInfo("Writing default configuration file")
				if err := os.WriteFile(configFilePath, []byte(defaultEnvFile), 0600); err != nil {
					utils.PrintWarning(fmt.Sprintf("Failed to write configuration file: %s", err))
					// not critical, env vars still work
				}
			}

			cfg, err := config.LoadFromEnv(configDir, configFilePath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			config.Set(cfg)

			utils.PrintInfo("Initializing database...")
			if err := database.InitDB(cfg); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			utils.PrintInfo("Applying database migrations...")
			migrationsApplied, err := database.RunMigrations()
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}

			utils.PrintSuccess("linkmark initialized successfully!")

			if migrationsApplied > 0 {
				utils.PrintSuccess(fmt.Sprintf("Applied %d new migration(s)", migrationsApplied))
			} else {
				utils.PrintInfo("Database schema is already up-to-date")
			}

			utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
			utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
			fmt.Println("")
			utils.PrintInfo("You can now use " + color.CyanString("linkmark add <url>") + " to save bookmarks.")

			return nil
		},
	}
}
