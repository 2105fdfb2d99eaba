// Package index builds a call graph from Go source using go/packages, SSA
// and class hierarchy analysis.
package index

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/abramin/callrisk/internal/config"
	"github.com/abramin/callrisk/internal/graph"
)

// Indexer coordinates the indexing pipeline.
type Indexer struct {
	cfg        *config.Config
	projectDir string
	logger     *zap.Logger
}

// NewIndexer creates a new indexer for the given project directory.
func NewIndexer(cfg *config.Config, projectDir string, logger *zap.Logger) *Indexer {
	absPath, err := filepath.Abs(projectDir)
	if err != nil {
		absPath = projectDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		cfg:        cfg,
		projectDir: absPath,
		logger:     logger,
	}
}

// Result holds the results of an indexing run.
type Result struct {
	PackageCount    int
	FunctionCount   int
	EdgeCount       int
	EntrypointCount int
	HandlerCount    int
	PackageErrors   int
	Duration        time.Duration
}

// Run loads the project, builds its call graph and returns it.
func (idx *Indexer) Run(ctx context.Context) (graph.Graph, *Result, error) {
	start := time.Now()

	idx.logger.Info("loading packages", zap.String("dir", idx.projectDir))
	loader := NewLoader(idx.cfg, idx.projectDir, idx.logger)
	if err := loader.Load(ctx); err != nil {
		return graph.Graph{}, nil, fmt.Errorf("loading packages: %w", err)
	}
	idx.logger.Info("loaded packages", zap.Int("count", len(loader.Packages())))

	if err := ctx.Err(); err != nil {
		return graph.Graph{}, nil, err
	}

	builder := NewCallGraphBuilder(loader)
	builder.Build()
	g, cgResult, err := builder.Extract()
	if err != nil {
		return graph.Graph{}, nil, fmt.Errorf("extracting call graph: %w", err)
	}
	if len(g.Functions) == 0 {
		return graph.Graph{}, nil, fmt.Errorf("no functions found in %s", idx.projectDir)
	}

	res := &Result{
		PackageCount:    len(loader.Packages()),
		FunctionCount:   cgResult.Functions,
		EdgeCount:       cgResult.Edges,
		EntrypointCount: cgResult.Entrypoints,
		HandlerCount:    cgResult.Handlers,
		PackageErrors:   loader.ErrorCount(),
		Duration:        time.Since(start),
	}
	idx.logger.Info("index complete",
		zap.Int("functions", res.FunctionCount),
		zap.Int("edges", res.EdgeCount),
		zap.Int("entrypoints", res.EntrypointCount),
		zap.Duration("duration", res.Duration),
	)
	return g, res, nil
}
