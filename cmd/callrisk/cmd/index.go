package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abramin/callrisk/internal/index"
	"github.com/abramin/callrisk/internal/ingest"
)

var (
	indexOut   string
	indexVulns string
	indexDB    string
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the call graph of a Go module",
	Long: `Analyze a Go module and write its call graph in the upload format.

The index command:
- Loads Go packages using go/packages
- Builds SSA and a class hierarchy call graph
- Marks main.main, configured entry point patterns and HTTP handlers as entry points
- Writes the graph as JSON (or YAML for .yaml/.yml paths)`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		cfg := GetConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexing project at: %s\n", path)

		g, result, err := index.NewIndexer(cfg, path, logger).Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		ws := newWorkspace(nil)
		req := ingest.FromGraph(g)
		st, err := ws.LoadGraph(req)
		if err != nil {
			return fmt.Errorf("indexed graph rejected: %w", err)
		}
		if err := loadVulnerabilities(ws, indexVulns); err != nil {
			return err
		}

		if err := ingest.WriteGraphFile(indexOut, req); err != nil {
			return fmt.Errorf("writing graph: %w", err)
		}
		if indexDB != "" {
			if err := exportSnapshot(indexDB, st, newAnalyzer(nil)); err != nil {
				return err
			}
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Indexing complete!\n")
		fmt.Fprintf(out, "  Packages:     %d\n", result.PackageCount)
		fmt.Fprintf(out, "  Functions:    %d\n", result.FunctionCount)
		fmt.Fprintf(out, "  Edges:        %d\n", result.EdgeCount)
		fmt.Fprintf(out, "  Entry points: %d (%d HTTP handlers)\n", result.EntrypointCount, result.HandlerCount)
		fmt.Fprintf(out, "  Duration:     %s\n", result.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "  Graph:        %s\n", indexOut)
		if indexDB != "" {
			fmt.Fprintf(out, "  Snapshot:     %s\n", indexDB)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexOut, "out", "o", "callgraph.json", "graph output file")
	indexCmd.Flags().StringVar(&indexVulns, "vulns", "", "vulnerabilities file to attach before exporting")
	indexCmd.Flags().StringVar(&indexDB, "db", "", "also export the graph to this SQLite file")
}
