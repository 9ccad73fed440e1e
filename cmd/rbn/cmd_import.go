package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn/config"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy a YAML dataset into a SQLite file",
	Long: `Reads --dataset and writes its ranges, populations, facts, template and
rules into --sqlite. Existing entries with the same keys are replaced and
rules are appended. Variable populations are not stored.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	if datasetPath == "" || sqlitePath == "" {
		return errors.New("import needs both --dataset and --sqlite")
	}
	d, err := config.LoadDataset(datasetPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	s, err := sqlite.OpenSQLite(cmd.Context(), sqlitePath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := d.Import(cmd.Context(), s); err != nil {
		return err
	}
	logger.Info("dataset imported",
		zap.String("from", datasetPath),
		zap.String("to", sqlitePath),
		zap.Int("facts", len(d.Facts)),
		zap.Int("rules", len(d.Rules)))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", datasetPath, sqlitePath)
	return nil
}
