package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the hive startup banner and logs the same
// information through arbor so it lands in structured log output too.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(72)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("HIVE")
	b.PrintCenteredText("Distributed Browser Automation Job Platform")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 18)
	b.PrintKeyValue("Environment", config.Environment, 18)
	b.PrintKeyValue("Browser Type", config.Server.DefaultBrowserType, 18)
	b.PrintKeyValue("SQLite Path", config.Storage.SQLitePath, 18)
	b.PrintKeyValue("Badger Path", config.Storage.BadgerPath, 18)
	b.PrintKeyValue("Max Concurrent Jobs", fmt.Sprintf("%d", config.Scheduler.MaxConcurrentJobs), 18)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("browser_type", config.Server.DefaultBrowserType).
		Str("sqlite_path", config.Storage.SQLitePath).
		Int("max_concurrent_jobs", config.Scheduler.MaxConcurrentJobs).
		Msg("hive started")
}

// PrintShutdownBanner displays a shutdown banner and logs the event.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("HIVE")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("hive shutting down")
}
