package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emmett/sphinxvox/internal/app"
	"github.com/emmett/sphinxvox/internal/config"
	"github.com/emmett/sphinxvox/internal/logging"
	grpcserver "github.com/emmett/sphinxvox/internal/server/grpc"
	httpserver "github.com/emmett/sphinxvox/internal/server/http"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	port        = flag.Int("port", 50051, "gRPC server port")
	httpAddr    = flag.String("http", "localhost:8080", "HTTP listen address, empty to disable")
	modelName   = flag.String("model", "", "Model name from the models directory")
	showVersion = flag.Bool("version", false, "Show version information")
)

const shutdownTimeout = 5 * time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("SphinxVox Server v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	fmt.Printf("SphinxVox Server v%s (commit: %s)\n", Version, GitCommit)

	cfg, err := config.LoadWithFallback(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.GRPCPort = *port
		case "http":
			cfg.Server.HTTPAddr = *httpAddr
		case "model":
			cfg.Model.Default = *modelName
		}
	})

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := logging.NewLogger(&cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	g, gctx := errgroup.WithContext(ctx)

	grpcSrv := grpcserver.NewServer(grpcserver.Config{Port: cfg.Server.GRPCPort}, rt.Service, logger)
	g.Go(grpcSrv.Start)

	var httpSrv *httpserver.Server
	if cfg.Server.HTTPAddr != "" {
		httpSrv = httpserver.NewServer(httpserver.Config{
			Addr:     cfg.Server.HTTPAddr,
			Gatherer: rt.Registry,
		}, rt.Service, logger)
		g.Go(httpSrv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		rt.Session.Cancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		grpcSrv.Stop()
		if httpSrv != nil {
			return httpSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
