package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zr-run/zr/internal/graph"
	"github.com/zr-run/zr/internal/zrerrors"
)

func newGraphCmd() *cobra.Command {
	var depth int
	var affectedRef string

	cmd := &cobra.Command{
		Use:   "graph [task]...",
		Short: "Render the dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			targets := args
			if affectedRef != "" {
				targets, err = affectedTargets(cfg, affectedRef, targets)
				if err != nil {
					return err
				}
			}
			if len(targets) == 0 {
				targets = allTaskNames(cfg)
			}

			g, err := graph.Build(cfg, targets)
			if err != nil {
				return err
			}

			switch flags.format {
			case "", "text", "ascii":
				return renderGraphASCII(g, depth)
			case "json":
				return renderGraphJSON(g)
			case "dot":
				return renderGraphDOT(g)
			case "html":
				return renderGraphHTML(g)
			default:
				return zrerrors.New(zrerrors.KindUnsupportedFmt, "unsupported --format %q", flags.format)
			}
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 0, "limit rendering to this many levels (0 = unlimited)")
	cmd.Flags().StringVar(&affectedRef, "affected", "", "limit the graph to tasks affected since this git revision")
	return cmd
}

func renderGraphASCII(g *graph.Graph, depth int) error {
	byLevel := map[int][]string{}
	maxLevel := 0
	for _, n := range g.Nodes {
		byLevel[n.Level] = append(byLevel[n.Level], n.Task.Name)
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
	}
	for lvl := 0; lvl <= maxLevel; lvl++ {
		if depth > 0 && lvl >= depth {
			break
		}
		names := byLevel[lvl]
		sort.Strings(names)
		fmt.Fprintf(os.Stdout, "level %d:\n", lvl)
		for _, n := range names {
			fmt.Fprintf(os.Stdout, "  %s\n", n)
		}
	}
	return nil
}

func renderGraphJSON(g *graph.Graph) error {
	fmt.Fprint(os.Stdout, "{\"nodes\":[")
	for i, n := range g.Nodes {
		if i > 0 {
			fmt.Fprint(os.Stdout, ",")
		}
		fmt.Fprintf(os.Stdout, "{\"name\":%q,\"level\":%d}", n.Task.Name, n.Level)
	}
	fmt.Fprint(os.Stdout, "],\"edges\":[")
	for i, e := range g.Edges {
		if i > 0 {
			fmt.Fprint(os.Stdout, ",")
		}
		kind := "parallel"
		if e.Kind == graph.EdgeSerial {
			kind = "serial"
		}
		fmt.Fprintf(os.Stdout, "{\"from\":%q,\"to\":%q,\"kind\":%q}", g.Nodes[e.From].Task.Name, g.Nodes[e.To].Task.Name, kind)
	}
	fmt.Fprintln(os.Stdout, "]}")
	return nil
}

func renderGraphDOT(g *graph.Graph) error {
	fmt.Fprintln(os.Stdout, "digraph zr {")
	for _, n := range g.Nodes {
		fmt.Fprintf(os.Stdout, "  %q;\n", n.Task.Name)
	}
	for _, e := range g.Edges {
		style := ""
		if e.Kind == graph.EdgeSerial {
			style = " [style=bold]"
		}
		fmt.Fprintf(os.Stdout, "  %q -> %q%s;\n", g.Nodes[e.From].Task.Name, g.Nodes[e.To].Task.Name, style)
	}
	fmt.Fprintln(os.Stdout, "}")
	return nil
}

func renderGraphHTML(g *graph.Graph) error {
	fmt.Fprintln(os.Stdout, "<!doctype html><html><body><pre>")
	for _, n := range g.Nodes {
		fmt.Fprintf(os.Stdout, "%s (level %d)\n", n.Task.Name, n.Level)
	}
	fmt.Fprintln(os.Stdout, "</pre></body></html>")
	return nil
}
