// Package cli implements the interactive RouterOS-style shell of rosctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/rosctl/pkg/cmdtree"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/quoting"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
)

// CLI is the interactive command-line interface.
type CLI struct {
	rl       *readline.Instance
	sess     session.Session
	reg      *schema.Registry
	engine   *findmodify.Engine
	out      io.Writer
	hostname string
}

// New creates a new CLI.
func New(sess session.Session, reg *schema.Registry, engine *findmodify.Engine) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "rosctl"
	}
	return &CLI{
		sess:     sess,
		reg:      reg,
		engine:   engine,
		out:      os.Stdout,
		hostname: hostname,
	}
}

// SetOutput redirects command output, mainly for tests.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

func (c *CLI) prompt() string {
	return fmt.Sprintf("[%s] > ", c.hostname)
}

// Run starts the interactive CLI loop.
func (c *CLI) Run(historyFile string) error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{reg: c.reg},
		Listener: readline.FuncListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
			if key != '?' || pos < 1 {
				return line, pos, false
			}
			// Strip the '?' that readline already inserted.
			clean := make([]rune, 0, len(line)-1)
			clean = append(clean, line[:pos-1]...)
			clean = append(clean, line[pos:]...)
			words, partial := splitForCompletion(string(clean[:pos-1]))
			candidates := cmdtree.Complete(cmdtree.ShellTree, words, partial, c.reg)
			if len(candidates) == 0 {
				fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
			} else {
				cmdtree.WriteHelp(c.rl.Stdout(), candidates)
			}
			return clean, pos - 1, true
		}),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()
	c.out = c.rl.Stdout()

	fmt.Fprintln(c.out, "rosctl shell - RouterOS configuration records")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.Execute(context.Background(), line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(c.rl.Stderr(), "error: %v\n", err)
		}
	}
	return nil
}

var errExit = errors.New("exit")

// Execute runs one command line.
func (c *CLI) Execute(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	if cmd == "split" {
		return c.handleSplit(rest)
	}

	args, err := quoting.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "print":
		return c.handlePrint(ctx, args[1:])
	case "set":
		return c.handleSet(ctx, args[1:])
	case "restrict":
		return c.handleRestrict(ctx, args[1:])
	case "fields":
		return c.handleFields(args[1:])
	case "paths":
		for _, p := range cmdtree.PathArgs(c.reg) {
			fmt.Fprintln(c.out, p)
		}
		return nil
	case "?", "help":
		c.showHelp()
		return nil
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *CLI) showHelp() {
	var candidates []cmdtree.Candidate
	for name, node := range cmdtree.ShellTree {
		candidates = append(candidates, cmdtree.Candidate{Name: name, Desc: node.Desc})
	}
	cmdtree.WriteHelp(c.out, candidates)
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "  print <path> [field=value | !field ...]")
	fmt.Fprintln(c.out, "  set <path> [min=N] [max=N] [allow-no-matches=yes|no] [dry-run] find ... values ...")
	fmt.Fprintln(c.out, "  restrict <path> [compat] field=<name> [values=a,b] [regex=re] [invert] [match-disabled] ...")
}

func (c *CLI) handleSplit(rest string) error {
	tokens, err := quoting.Split(rest)
	if err != nil {
		return err
	}
	for i, tok := range tokens {
		fmt.Fprintf(c.out, "%3d %q\n", i, tok)
	}
	return nil
}

func (c *CLI) handleFields(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("fields: expected exactly one path")
	}
	p, err := c.reg.FieldsOf(args[0])
	if err != nil {
		return err
	}
	for _, name := range p.FieldNames() {
		f := p.Fields[name]
		var notes []string
		if f.Default != nil {
			notes = append(notes, "default="+formatValue(f.Default))
		}
		if f.HasAbsentValue {
			notes = append(notes, "absent="+formatValue(f.AbsentValue))
		}
		if f.DisableByEmptyString {
			notes = append(notes, "disable-by-empty-string")
		}
		if f.Required {
			notes = append(notes, "required")
		}
		fmt.Fprintf(c.out, "  %-24s %s\n", name, strings.Join(notes, " "))
	}
	return nil
}
