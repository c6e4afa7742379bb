package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwhale/driftwhale/internal/config"
	"github.com/driftwhale/driftwhale/internal/dependency"
)

var memoryAgent string

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the assistant's memory",
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the fact document and consolidation state",
	RunE:  runMemoryShow,
}

var memoryConsolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a consolidation pass now",
	RunE:  runMemoryConsolidate,
}

var memoryPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete throwaway sessions with too few user turns",
	RunE:  runMemoryPurge,
}

func init() {
	memoryCmd.PersistentFlags().StringVarP(&memoryAgent, "agent", "a", "", "Agent name (default from config)")
	memoryCmd.AddCommand(memoryShowCmd)
	memoryCmd.AddCommand(memoryConsolidateCmd)
	memoryCmd.AddCommand(memoryPurgeCmd)
}

func memoryContainer() (*dependency.Container, string, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	container, err := dependency.New(cfg)
	if err != nil {
		return nil, "", err
	}
	agentName := memoryAgent
	if agentName == "" {
		agentName = cfg.Agent.Name
	}
	return container, agentName, nil
}

func runMemoryShow(_ *cobra.Command, _ []string) error {
	container, agentName, err := memoryContainer()
	if err != nil {
		return err
	}

	facts := container.Brain(agentName).Raw()
	if facts == "" {
		fmt.Println("No facts recorded yet.")
	} else {
		fmt.Println(facts)
	}

	pending, err := container.Engine().UnconsolidatedSessions(agentName)
	if err != nil {
		return err
	}
	fmt.Printf("\nSessions awaiting consolidation: %d\n", len(pending))
	return nil
}

func runMemoryConsolidate(_ *cobra.Command, _ []string) error {
	container, agentName, err := memoryContainer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	rep, err := container.Engine().RunPass(ctx, agentName)
	if err != nil {
		return fmt.Errorf("consolidation pass: %w", err)
	}

	fmt.Printf("Created: %d L1, %d L2, %d L3\n", rep.L1Created, rep.L2Created, rep.L3Created)
	fmt.Printf("Cleaned up: %d sessions, %d consumed digests\n", rep.SessionsDeleted, rep.ArtifactsPruned)
	return nil
}

func runMemoryPurge(_ *cobra.Command, _ []string) error {
	container, agentName, err := memoryContainer()
	if err != nil {
		return err
	}

	n, err := container.Engine().PurgeGarbage(agentName)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d throwaway sessions.\n", n)
	return nil
}
