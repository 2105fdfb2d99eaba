package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
	"github.com/abramin/callrisk/internal/server"
)

var (
	analyzeIn            inputs
	analyzeDB            string
	analyzeOut           string
	analyzeMaxPaths      int
	analyzeMinSeverity   string
	analyzeMaxPathLength int
)

// report is the output of the analyze command.
type report struct {
	Components  server.ComponentsResponse  `json:"components"`
	AttackPaths server.AttackPathsResponse `json:"attack_paths"`
	Risks       server.RisksResponse       `json:"risks"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run every analysis once and print a JSON report",
	Long: `Load a call graph and vulnerabilities, then print the component analysis,
the critical attack paths and the full risk listing as one JSON document.

The graph comes from --graph (JSON or YAML) or from a snapshot written by
an earlier --db export (--from-db). With --db the graph, vulnerabilities and
computed risks are also written to a SQLite file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if analyzeIn.empty() {
			return fmt.Errorf("a graph is required: pass --graph or --from-db")
		}

		minSeverity := graph.Severity(cfg.Analysis.MinSeverity)
		if analyzeMinSeverity != "" {
			sev, err := graph.ParseSeverity(analyzeMinSeverity)
			if err != nil {
				return fmt.Errorf("--min-severity: %w", err)
			}
			minSeverity = sev
		}
		maxPaths := cfg.Analysis.MaxPaths
		if analyzeMaxPaths > 0 {
			maxPaths = analyzeMaxPaths
		}

		ws := newWorkspace(nil)
		if err := load(ws, analyzeIn); err != nil {
			return err
		}
		st, err := ws.Current()
		if err != nil {
			return err
		}

		an := newAnalyzer(nil)
		out := report{
			Components: server.NewComponentsResponse(an.ComponentReport(st)),
			AttackPaths: server.NewAttackPathsResponse(an.CriticalAttackPaths(st, analysis.AttackPathOptions{
				MaxPaths:      maxPaths,
				MinSeverity:   minSeverity,
				MaxPathLength: analyzeMaxPathLength,
			})),
			Risks: server.NewRisksResponse(an.Risks(st, analysis.RiskOptions{Limit: cfg.Analysis.RiskLimit})),
		}

		if analyzeDB != "" {
			if err := exportSnapshot(analyzeDB, st, an); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "snapshot written to %s\n", analyzeDB)
		}

		if analyzeOut == "" || analyzeOut == "-" {
			return writeJSON(cmd.OutOrStdout(), out)
		}
		return writeReportFile(analyzeOut, out)
	},
}

// writeReportFile writes rep to path, reporting a failed close.
func writeReportFile(path string, rep report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeJSON(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeIn.graphPath, "graph", "", "graph file (JSON or YAML)")
	f.StringVar(&analyzeIn.vulnsPath, "vulns", "", "vulnerabilities file (JSON or YAML)")
	f.StringVar(&analyzeIn.fromDB, "from-db", "", "read graph and vulnerabilities from a snapshot")
	f.StringVar(&analyzeDB, "db", "", "also export graph, vulnerabilities and risks to this SQLite file")
	f.StringVarP(&analyzeOut, "out", "o", "", "write the report to a file instead of stdout")
	f.IntVar(&analyzeMaxPaths, "max-paths", 0, "maximum attack paths reported (default from config)")
	f.StringVar(&analyzeMinSeverity, "min-severity", "", "minimum severity for attack paths (default from config)")
	f.IntVar(&analyzeMaxPathLength, "max-path-length", 0, "maximum attack path length in functions (0 = unbounded)")
}
