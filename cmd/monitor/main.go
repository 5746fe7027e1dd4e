// VodVault Monitor - terminal status board for a running VodVault server.
package main

import (
	"fmt"
	"os"

	"github.com/vodvault/vodvault/cmd/monitor/internal/config"
	"github.com/vodvault/vodvault/cmd/monitor/internal/ui"
)

func main() {
	cfg := config.Load()

	app := ui.NewApp(cfg)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running status board: %v\n", err)
		os.Exit(1)
	}
}
