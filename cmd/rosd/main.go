// rosd is the rosctl lab daemon.
//
// It holds RouterOS-style configuration records in memory or redis and
// serves them, together with a find-and-modify engine, over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/rosctl/pkg/daemon"
	"github.com/psaab/rosctl/pkg/daemonconf"
)

func main() {
	configFile := flag.String("config", "", "configuration file path (YAML)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC listen address (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "metrics listen address (overrides config)")
	seedFile := flag.String("seed", "", "seed file with initial records (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := daemonconf.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rosd: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *seedFile != "" {
		cfg.SeedFile = *seedFile
	}

	// Set up structured logging
	logLevel := slog.LevelInfo
	if *debug || cfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := daemon.New(cfg).Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "rosd: %v\n", err)
		os.Exit(1)
	}
}
