// Command rbn evaluates relational Bayes nets against a dataset and serves
// template grounding over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sfu-cl-lab/our-papers/pkg/rbn"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/config"
)

var (
	logger *zap.Logger

	// global flags
	datasetPath      string
	sqlitePath       string
	serverConfigPath string
	debug            bool
	smoothing        float64
)

var rootCmd = &cobra.Command{
	Use:   "rbn",
	Short: "Relational Bayes net grounding and random-selection inference",
	Long: `rbn binds a template Bayes net to a relational database.

Batch commands read a dataset from --dataset (YAML) or --sqlite and print
CPT estimates, joint probability tables, ground graphs or Gibbs
conditionals. "rbn serve" answers define and ground requests over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&datasetPath, "dataset", "", "dataset YAML file")
	pf.StringVar(&sqlitePath, "sqlite", "", "SQLite dataset (takes precedence over --dataset)")
	pf.StringVar(&serverConfigPath, "config", "", "server config YAML; also supplies smoothing and uniform_default")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.Float64Var(&smoothing, "smoothing", 0, "additive smoothing of CPT estimates")

	rootCmd.AddCommand(serveCmd, thetasCmd, jointCmd, groundCmd, gibbsCmd, importCmd)
}

// loadModel reads the dataset named by the global flags or by the server
// config. Flags win over the config: a nonzero --smoothing replaces its
// smoothing and --uniform-default turns uniform_default on.
func loadModel(ctx context.Context, uniformDefault bool) (*rbn.Model, error) {
	if smoothing < 0 {
		return nil, fmt.Errorf("--smoothing %v is negative", smoothing)
	}
	srv, err := serverSettings()
	if err != nil {
		return nil, err
	}
	loader := &config.Loader{
		ServerPath:  serverConfigPath,
		DatasetPath: firstNonEmpty(datasetPath, srv.Dataset),
		SQLitePath:  firstNonEmpty(sqlitePath, srv.SQLite),
	}
	if loader.DatasetPath == "" && loader.SQLitePath == "" {
		return nil, errors.New("--dataset or --sqlite required")
	}
	comp, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	opts := rbn.Options{Smoothing: srv.Smoothing, UniformDefault: srv.UniformDefault || uniformDefault}
	if smoothing != 0 {
		opts.Smoothing = smoothing
	}
	logger.Debug("dataset loaded",
		zap.Int("facts", comp.Dataset.Database.Len()),
		zap.Int("nodes", comp.Dataset.Net.Len()),
		zap.Int("rules", len(comp.Dataset.Rules)),
		zap.Float64("smoothing", opts.Smoothing),
		zap.Bool("uniform_default", opts.UniformDefault))
	return rbn.New(comp.Dataset, opts)
}

// serverSettings reads --config, or returns the defaults without one.
func serverSettings() (*config.Server, error) {
	if serverConfigPath == "" {
		return config.DefaultServer(), nil
	}
	srv, err := config.LoadServer(serverConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	return srv, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
