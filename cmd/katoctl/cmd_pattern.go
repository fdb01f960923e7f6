package main

import (
	"github.com/spf13/cobra"

	"kato/internal/kerr"
	"kato/internal/pattern"
)

var getPatternCmd = &cobra.Command{
	Use:   "get-pattern <library-id> <name>",
	Short: "Fetch a stored pattern by name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		libraryID, name := args[0], args[1]
		p, ok, err := eng.GetPattern(cmd.Context(), libraryID, name)
		if err != nil {
			return err
		}
		if !ok {
			return &kerr.PatternNotFoundError{Name: name}
		}
		return printJSON(patternView(p))
	},
}

// patternView flattens a *pattern.Pattern's StringSet metadata into plain
// string slices for readable JSON output (StringSet marshals as a map of
// empty objects otherwise).
func patternView(p *pattern.Pattern) map[string]any {
	data := make([][]string, len(p.Data))
	for i, ev := range p.Data {
		data[i] = []string(ev)
	}
	metadata := make(map[string][]string, len(p.Metadata))
	for k, set := range p.Metadata {
		metadata[k] = set.Sorted()
	}
	return map[string]any{
		"name":      p.Name,
		"data":      data,
		"frequency": p.Frequency,
		"emotives":  p.Emotives,
		"metadata":  metadata,
	}
}
