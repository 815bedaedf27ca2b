package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/task"
)

var restrictCmd = &cobra.Command{
	Use:   "restrict",
	Short: "List the records that pass a restrict task",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readTaskFile(cmd)
		if err != nil {
			return err
		}
		t, err := task.ParseRestrict(data)
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		records, err := t.Run(cmd.Context(), b.sess, b.registry)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), map[string]any{"result": recordMaps(records)})
	},
}

var findModifyCmd = &cobra.Command{
	Use:   "find-and-modify",
	Short: "Bring matching records to the desired values",
	Long: `Runs a find-and-modify task. Against a daemon (--addr) the task runs on
the daemon; otherwise it runs against the local device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readTaskFile(cmd)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("task: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			doc["dry_run"] = true
		}
		if diff, _ := cmd.Flags().GetBool("diff"); diff {
			doc["diff"] = true
		}
		t, err := task.DecodeFindModify(doc)
		if err != nil {
			return err
		}

		b, err := openBackend(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		var res *findmodify.Result
		if b.remote != nil {
			res, err = b.remote.FindModify(cmd.Context(), doc)
		} else {
			res, err = b.engine().Run(cmd.Context(), t.Options())
		}
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), resultDoc(res))
	},
}

func init() {
	for _, c := range []*cobra.Command{restrictCmd, findModifyCmd} {
		c.Flags().StringP("file", "f", "", "task file (YAML or JSON, - for stdin)")
		c.MarkFlagRequired("file")
		rootCmd.AddCommand(c)
	}
	findModifyCmd.Flags().Bool("dry-run", false, "compute modifications without writing")
	findModifyCmd.Flags().Bool("diff", false, "include the matched records before and after")
}

func readTaskFile(cmd *cobra.Command) ([]byte, error) {
	name, _ := cmd.Flags().GetString("file")
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	return data, nil
}

func recordMaps(records []entry.Record) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, rec := range records {
		out[i] = rec
	}
	return out
}

func resultDoc(res *findmodify.Result) map[string]any {
	mods := make([]map[string]any, len(res.Modifications))
	for i, m := range res.Modifications {
		mods[i] = map[string]any{"id": m.ID, "changes": m.Changes}
	}
	doc := map[string]any{
		"changed":       res.Changed(),
		"match_count":   res.MatchCount,
		"modify_count":  res.ModifyCount,
		"modifications": mods,
		"old_data":      recordMaps(res.OldData),
		"new_data":      recordMaps(res.NewData),
	}
	if res.Diff != nil {
		doc["diff"] = map[string]any{
			"before": recordMaps(res.Diff.Before),
			"after":  recordMaps(res.Diff.After),
		}
	}
	return doc
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
