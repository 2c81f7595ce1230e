package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/internal/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *am.Config, port int, dbPath string) {
	versionInfo := version.Get()

	fmt.Println()
	pterm.DefaultBox.
		WithTitle(pterm.LightCyan("fitbaus")).
		WithTitleTopCenter().
		Println("Personal health metrics fetch server")

	pterm.Printf("  Version:   %s (commit %s)\n", versionInfo.Version, versionInfo.Short())
	pterm.Printf("  Built:     %s\n", versionInfo.BuildTime)
	pterm.Printf("  Port:      %d\n", port)
	pterm.Printf("  Profiles:  %s\n", cfg.Paths.ProfilesDir)
	if dbPath != "" {
		pterm.Printf("  Archive:   %s\n", dbPath)
	} else {
		pterm.Printf("  Archive:   %s\n", pterm.Gray("disabled"))
	}
	fmt.Println()

	pterm.Info.Printf("Dashboard at http://localhost:%d\n", port)
	pterm.Printf("%s\n\n", pterm.Blue("Press Ctrl+C to stop"))
}
