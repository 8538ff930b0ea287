package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, addr string, cfg *am.Config, llmOnline bool) {
	versionInfo := version.Get()

	llm := "offline (heuristic summaries)"
	if llmOnline {
		llm = cfg.LLM.Provider
	}
	workers := "disabled"
	if cfg.Pulse.Workers > 0 {
		workers = fmt.Sprintf("%d", cfg.Pulse.Workers)
	}

	pterm.DefaultHeader.WithFullWidth().Println("dataq - dataset quality pipeline")
	pterm.DefaultBox.WithTitle("dataq").Println(fmt.Sprintf(
		"Version:   %s (commit %s)\nBuilt:     %s\nVerbosity: %s\nListen:    http://%s\nDatabase:  %s\nStorage:   %s\nLLM:       %s\nWorkers:   %s",
		versionInfo.Version, versionInfo.Short(),
		versionInfo.BuildTime,
		logger.LevelName(verbosity),
		addr,
		cfg.Database.Path,
		cfg.Storage.Backend,
		llm,
		workers,
	))
	pterm.Info.Println("Press Ctrl+C to stop")
}
