package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sfu-cl-lab/our-papers/internal/metrics"
	"github.com/sfu-cl-lab/our-papers/internal/server"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/config"
	"github.com/sfu-cl-lab/our-papers/pkg/rbn/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve define and ground requests over HTTP",
	Long: `Starts the HTTP API. Settings come from --config; the PORT environment
variable overrides the port of the listen address. A dataset given by flag
or by the config file is defined as the initial template.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg, err := serverSettings()
	if err != nil {
		return err
	}
	loader := &config.Loader{
		ServerPath:  serverConfigPath,
		DatasetPath: firstNonEmpty(datasetPath, srvCfg.Dataset),
		SQLitePath:  firstNonEmpty(sqlitePath, srvCfg.SQLite),
	}
	comp, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	ids := rbn.NewIDSource()
	session := rbn.NewSession(rbn.SessionOptions{
		Logger:        logger,
		MaxGroundings: comp.Server.Limits.MaxGroundings,
		Observer:      m,
		IDs:           ids,
	})
	if ds := comp.Dataset; ds != nil {
		err := defineDataset(ctx, session, ds)
		m.Defined(err == nil)
		if err != nil {
			return fmt.Errorf("define startup template: %w", err)
		}
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	api := server.New(session, server.Options{Metrics: m, Logger: logger, IDs: ids})
	addr, err := listenAddr(comp.Server.Addr, os.Getenv("PORT"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("serving API", zap.String("addr", ln.Addr().String()))
	g.Go(func() error {
		return server.Serve(gctx, ln, api.Handler(), comp.Server.MaxConnections)
	})

	if comp.Server.MetricsAddr != "" {
		mln, err := net.Listen("tcp", comp.Server.MetricsAddr)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		logger.Info("serving metrics", zap.String("addr", mln.Addr().String()))
		g.Go(func() error {
			return server.Serve(gctx, mln, m.Handler(), 0)
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// defineDataset makes the dataset's template current, with its ranges,
// populations and variable populations.
func defineDataset(ctx context.Context, session *rbn.Session, ds *store.Dataset) error {
	_, err := session.Define(ctx, rbn.DefineRequest{
		Template:            ds.Net.Serialize(),
		Ranges:              ds.Database.Ranges(),
		Populations:         ds.Database.Populations(),
		VariablePopulations: ds.Database.VariablePopulations(),
	})
	return err
}

// listenAddr replaces the port of addr when port is set.
func listenAddr(addr, port string) (string, error) {
	if port == "" {
		return addr, nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("listen address %q: %w", addr, err)
	}
	return net.JoinHostPort(host, port), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
