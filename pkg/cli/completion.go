package cli

import (
	"strings"

	"github.com/psaab/rosctl/pkg/cmdtree"
	"github.com/psaab/rosctl/pkg/schema"
)

// completer implements readline.AutoCompleter over cmdtree.ShellTree.
type completer struct {
	reg *schema.Registry
}

// splitForCompletion separates the finished words from the partial word
// under the cursor.
func splitForCompletion(text string) (words []string, partial string) {
	words = strings.Fields(text)
	if len(words) > 0 && !strings.HasSuffix(text, " ") {
		partial = words[len(words)-1]
		words = words[:len(words)-1]
	}
	return words, partial
}

// Do implements readline.AutoCompleter.
func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	words, partial := splitForCompletion(string(line[:pos]))
	candidates := cmdtree.Complete(cmdtree.ShellTree, words, partial, c.reg)
	if len(candidates) == 0 {
		return nil, 0
	}
	names := cmdtree.Names(candidates)
	if len(names) > 1 {
		// Extend to the common prefix first, like the device console does.
		if prefix := cmdtree.CommonPrefix(names); len(prefix) > len(partial) {
			return [][]rune{[]rune(prefix[len(partial):])}, len(partial)
		}
	}
	out := make([][]rune, len(names))
	for i, name := range names {
		suffix := name[len(partial):]
		if len(names) == 1 {
			suffix += " "
		}
		out[i] = []rune(suffix)
	}
	return out, len(partial)
}
