package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/abramin/callrisk/internal/analysis"
	"github.com/abramin/callrisk/internal/graph"
	"github.com/abramin/callrisk/internal/ingest"
	"github.com/abramin/callrisk/internal/snapshot"
)

// inputs names the sources a workspace is filled from.
type inputs struct {
	graphPath string
	vulnsPath string
	fromDB    string
}

func (in inputs) empty() bool {
	return in.graphPath == "" && in.fromDB == ""
}

// newWorkspace builds a workspace enforcing the configured ingestion limits.
func newWorkspace(observer ingest.Observer) *ingest.Workspace {
	v := ingest.NewValidator(ingest.Limits{
		MaxFunctions:       cfg.Ingest.MaxFunctions,
		MaxEdges:           cfg.Ingest.MaxEdges,
		MaxVulnerabilities: cfg.Ingest.MaxVulnerabilities,
	})
	return ingest.NewWorkspace(v, logger, observer)
}

// newAnalyzer builds an analyzer from the configuration.
func newAnalyzer(observer analysis.Observer) *analysis.Analyzer {
	opts := []analysis.Option{
		analysis.WithMaxStates(cfg.Analysis.MaxStates),
		analysis.WithScoringFactors(cfg.ScoringFactors()),
		analysis.WithLogger(logger),
	}
	if observer != nil {
		opts = append(opts, analysis.WithObserver(observer))
	}
	return analysis.New(opts...)
}

// load fills ws from a graph file or a snapshot, then applies a
// vulnerabilities file if one is given. Everything passes the same
// validation as an HTTP upload.
func load(ws *ingest.Workspace, in inputs) error {
	if in.graphPath != "" && in.fromDB != "" {
		return errors.New("--graph and --from-db are mutually exclusive")
	}

	switch {
	case in.fromDB != "":
		snap, err := snapshot.Open(in.fromDB)
		if err != nil {
			return fmt.Errorf("opening snapshot: %w", err)
		}
		defer snap.Close()

		g, err := snap.ReadGraph()
		if err != nil {
			return fmt.Errorf("reading snapshot graph: %w", err)
		}
		if _, err := ws.LoadGraph(ingest.FromGraph(g)); err != nil {
			return fmt.Errorf("loading snapshot graph: %w", err)
		}
		vulns, err := snap.ReadVulnerabilities()
		if err != nil {
			return fmt.Errorf("reading snapshot vulnerabilities: %w", err)
		}
		if in.vulnsPath == "" && len(vulns) > 0 {
			if _, err := ws.ReplaceVulnerabilities(ingest.FromVulnerabilities(vulns)); err != nil {
				return fmt.Errorf("loading snapshot vulnerabilities: %w", err)
			}
		}
	case in.graphPath != "":
		req, err := ingest.LoadGraphFile(in.graphPath)
		if err != nil {
			return err
		}
		if _, err := ws.LoadGraph(req); err != nil {
			return fmt.Errorf("loading %s: %w", in.graphPath, err)
		}
	default:
		return errors.New("a graph is required: pass --graph or --from-db")
	}

	return loadVulnerabilities(ws, in.vulnsPath)
}

func loadVulnerabilities(ws *ingest.Workspace, path string) error {
	if path == "" {
		return nil
	}
	dtos, err := ingest.LoadVulnerabilitiesFile(path)
	if err != nil {
		return err
	}
	if _, err := ws.ReplaceVulnerabilities(dtos); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// exportSnapshot writes st and its full risk table to a SQLite file.
func exportSnapshot(path string, st *graph.Store, an *analysis.Analyzer) error {
	snap, err := snapshot.Open(path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}

	risks := an.Risks(st, analysis.RiskOptions{Limit: len(st.Vulnerabilities()) + 1})
	if err := snap.Write(st, risks); err != nil {
		snap.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := snap.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
