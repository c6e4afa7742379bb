package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftwhale/driftwhale/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show driftwhale status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s driftwhale Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	ws := cfg.Workspace()
	_, wsErr := os.Stat(ws)
	wsMark := "✗"
	if wsErr == nil {
		wsMark = "✓"
	}
	fmt.Printf("Workspace: %s %s\n", ws, wsMark)
	fmt.Printf("Model:     %s\n", cfg.Provider.Model)
	if cfg.Provider.UtilityModel != "" {
		fmt.Printf("Utility:   %s\n", cfg.Provider.UtilityModel)
	}

	keyMark := "(not set)"
	if cfg.Provider.APIKey != "" {
		keyMark = "✓"
	}
	fmt.Printf("API key:   %s\n\n", keyMark)

	agentDir := filepath.Join(ws, "agents", cfg.Agent.Name)
	fmt.Printf("Agent %q:\n", cfg.Agent.Name)
	fmt.Printf("  Sessions:   %d\n", countFiles(filepath.Join(agentDir, "sessions"), ".jsonl"))
	fmt.Printf("  L1 digests: %d\n", countFiles(filepath.Join(agentDir, "consolidation", "l1"), ".md"))
	fmt.Printf("  L2 digests: %d\n", countFiles(filepath.Join(agentDir, "consolidation", "l2"), ".md"))
	fmt.Printf("  L3 digests: %d\n", countFiles(filepath.Join(agentDir, "consolidation", "l3"), ".md"))

	brainMark := "✗"
	if _, err := os.Stat(filepath.Join(agentDir, "brain.md")); err == nil {
		brainMark = "✓"
	}
	fmt.Printf("  Facts:      %s\n", brainMark)
	return nil
}

func countFiles(dir, ext string) int {
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+ext))
	return len(matches)
}
