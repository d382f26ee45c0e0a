package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/pkg/types"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeWarm(w io.Writer, res *intro.WarmResult) error {
	d := res.Diagnostics
	fmt.Fprintf(w, "Warm introductions to %s (snapshot %s)\n", res.Target, res.SnapshotVersion)
	switch {
	case d.UnknownTarget:
		fmt.Fprintln(w, "  target not found")
		return nil
	case d.EmptySeedSet:
		fmt.Fprintln(w, "  no seeds available")
		return nil
	}
	if err := writePathTable(w, res.Introductions); err != nil {
		return err
	}
	fmt.Fprintf(w, "  %d of %d seeds reach the target", d.SeedsWithPaths, d.SeedsConsidered)
	if d.Truncated {
		fmt.Fprint(w, " (search truncated)")
	}
	if d.SemanticUnavailable {
		fmt.Fprint(w, " (semantic scoring unavailable)")
	}
	fmt.Fprintln(w)
	return nil
}

func writePaths(w io.Writer, res *intro.PathResult) error {
	fmt.Fprintf(w, "Paths %s -> %s via %s (snapshot %s)\n",
		res.Source, res.Target, strings.Join(res.Strategies, ", "), res.SnapshotVersion)
	if res.UnknownEntity {
		fmt.Fprintln(w, "  entity not found")
		return nil
	}
	if err := writePathTable(w, res.Paths); err != nil {
		return err
	}
	if res.Truncated {
		fmt.Fprintln(w, "  search truncated")
	}
	return nil
}

func writePathTable(w io.Writer, paths []types.Path) error {
	if len(paths) == 0 {
		fmt.Fprintln(w, "  no paths")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tSCORE\tSTRENGTH\tSTRATEGY\tPATH\tDISTANCE")
	for i, p := range paths {
		fmt.Fprintf(tw, "  %d\t%.4f\t%.4f\t%s\t%s\t%s\n",
			i+1, p.Score, p.CumulativeStrength, p.Strategy,
			strings.Join(p.Nodes, " -> "), types.DescribeHops(p.Hops))
	}
	return tw.Flush()
}
