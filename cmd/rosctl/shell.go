package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psaab/rosctl/pkg/cli"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		history, _ := cmd.Flags().GetString("history")
		return cli.New(b.sess, b.registry, b.engine()).Run(history)
	},
}

func init() {
	history := ""
	if dir, err := os.UserCacheDir(); err == nil {
		history = filepath.Join(dir, "rosctl_history")
	}
	shellCmd.Flags().String("history", history, "history file")
	rootCmd.AddCommand(shellCmd)
}
