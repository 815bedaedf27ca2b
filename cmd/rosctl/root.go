package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/grpcapi"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
	"github.com/psaab/rosctl/pkg/session/memory"
)

var rootCmd = &cobra.Command{
	Use:   "rosctl",
	Short: "rosctl manages RouterOS-style configuration records",
	Long: `rosctl tokenizes and quotes RouterOS command lines, filters records with
restrict rules and brings records to a desired state with find-and-modify.

Records come from a rosd daemon (--addr) or from a local seed file (--seed).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rosctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("addr", "", "rosd gRPC address (empty to use a local device)")
	rootCmd.PersistentFlags().String("seed", "", "seed file for the local device")
	rootCmd.PersistentFlags().String("schema", "", "schema file (default: built-in schema)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

// backend is the device a command works on.
type backend struct {
	sess     session.Session
	registry *schema.Registry
	remote   *grpcapi.Client
}

func (b *backend) Close() error {
	if b.remote != nil {
		return b.remote.Close()
	}
	return nil
}

// engine returns a local engine over the backend session.
func (b *backend) engine() *findmodify.Engine {
	return findmodify.New(b.sess, b.registry)
}

func openBackend(ctx context.Context, cmd *cobra.Command) (*backend, error) {
	b := &backend{}

	schemaFile, _ := cmd.Flags().GetString("schema")
	if schemaFile != "" {
		reg, err := schema.LoadFile(schemaFile)
		if err != nil {
			return nil, err
		}
		b.registry = reg
	} else {
		b.registry = schema.Builtin()
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		client, err := grpcapi.Dial(addr)
		if err != nil {
			return nil, err
		}
		b.sess = client
		b.remote = client
		return b, nil
	}

	dev := memory.New(memory.WithSchema(b.registry))
	if seedFile, _ := cmd.Flags().GetString("seed"); seedFile != "" {
		seed, err := session.LoadSeedFile(seedFile)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, dev); err != nil {
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}
	b.sess = dev
	return b, nil
}
