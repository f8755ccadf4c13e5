package main

import (
	"fmt"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/storage"
	"github.com/folio-labs/journey/internal/storage/memory"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Replace the configured store's milestones with a content file",
	Long: `Reads a JSON or YAML content file and writes its milestones to the
configured store, in file order. The rest store is read-only.

Example:
  journeyd seed content/experience.yaml --config ./deploy`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	initLogging(false)

	milestones, err := memory.ReadFile(args[0])
	if err != nil {
		return err
	}

	store, err := initStorage()
	if err != nil {
		return err
	}
	defer closeStorage(store)

	w, ok := store.(storage.Writer)
	if !ok {
		return fmt.Errorf("storage type %q does not accept writes", config.GetStorageConfig().Type)
	}
	if err := w.SaveMilestones(cmd.Context(), milestones); err != nil {
		return fmt.Errorf("save milestones: %w", err)
	}

	Logger.Info("Seeded milestones", "milestones", len(milestones), "type", config.GetStorageConfig().Type)
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d milestones\n", len(milestones))
	return nil
}
