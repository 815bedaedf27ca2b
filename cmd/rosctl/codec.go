package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/psaab/rosctl/pkg/quoting"
)

var splitCmd = &cobra.Command{
	Use:   "split [line]",
	Short: "Split a command line into tokens",
	Long: `Splits a RouterOS command line into unquoted tokens, one per output line.
Without an argument, every line of standard input is split.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return splitLine(cmd.OutOrStdout(), args[0])
		}
		return splitLines(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var joinCmd = &cobra.Command{
	Use:   "join token...",
	Short: "Quote tokens and join them into a command line",
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := quoting.Join(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(joinCmd)
}

func splitLine(w io.Writer, line string) error {
	tokens, err := quoting.Split(line)
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		fmt.Fprintf(w, "%q\n", tok)
	}
	return nil
}

// maxLineSize bounds a single input line of split.
const maxLineSize = 16 << 20

func splitLines(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if err := splitLine(w, line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}
