// Package cmdtree defines the command tree of the interactive shell. It
// drives tab completion and '?' help.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/psaab/rosctl/pkg/schema"
)

// Node defines a completion tree node with description, children, and optional dynamic values.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(reg *schema.Registry) []string
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// ShellTree is the command tree of the interactive shell.
var ShellTree = map[string]*Node{
	"print":    {Desc: "Show records of a path", DynamicFn: PathArgs},
	"set":      {Desc: "Find records and bring them to the given values", DynamicFn: PathArgs},
	"restrict": {Desc: "Show records passing restrict rules", DynamicFn: PathArgs},
	"fields":   {Desc: "Show the fields known for a path", DynamicFn: PathArgs},
	"paths":    {Desc: "List known configuration paths"},
	"split":    {Desc: "Show how a command line is tokenized"},
	"help":     {Desc: "Show help"},
	"exit":     {Desc: "Leave the shell"},
	"quit":     {Desc: "Leave the shell"},
}

// PathArgs returns the registry paths in their slash form ("/ip/address"),
// which is a single shell word.
func PathArgs(reg *schema.Registry) []string {
	if reg == nil {
		return nil
	}
	paths := reg.Paths()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = "/" + strings.ReplaceAll(p, " ", "/")
	}
	return out
}

// Complete returns the candidates for partial after the given words.
func Complete(tree map[string]*Node, words []string, partial string, reg *schema.Registry) []Candidate {
	current := tree
	var currentNode *Node
	dynamicConsumed := false
	for _, w := range words {
		dynamicConsumed = false
		node, ok := current[w]
		if !ok {
			// Not a static child: if the parent takes dynamic values, the
			// word is one of them.
			if currentNode != nil && currentNode.DynamicFn != nil {
				dynamicConsumed = true
				continue
			}
			return nil
		}
		currentNode = node
		current = node.Children
	}

	var candidates []Candidate
	for name, node := range current {
		if strings.HasPrefix(name, partial) {
			candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
		}
	}
	if !dynamicConsumed && currentNode != nil && currentNode.DynamicFn != nil {
		for _, name := range currentNode.DynamicFn(reg) {
			if strings.HasPrefix(name, partial) {
				candidates = append(candidates, Candidate{Name: name, Desc: "(path)"})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates
}

// WriteHelp prints aligned candidates to w.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest common prefix of items.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

// Names returns the names of the candidates.
func Names(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Name
	}
	return out
}
