package index

import (
	"context"
	"fmt"
	"go/token"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/go/packages"

	"github.com/abramin/callrisk/internal/config"
)

// LoadMode defines the packages.Load mode required to build SSA.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedModule

// maxReportedErrors bounds how many package errors are logged individually.
const maxReportedErrors = 5

// Loader loads the Go packages of a project.
type Loader struct {
	cfg        *config.Config
	projectDir string
	logger     *zap.Logger
	fset       *token.FileSet
	pkgs       []*packages.Package
	errCount   int
}

// NewLoader creates a new package loader.
func NewLoader(cfg *config.Config, projectDir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:        cfg,
		projectDir: projectDir,
		logger:     logger,
		fset:       token.NewFileSet(),
	}
}

// Load loads all Go packages below the project directory, dropping packages
// that live in excluded directories.
func (l *Loader) Load(ctx context.Context) error {
	cfg := &packages.Config{
		Context: ctx,
		Mode:    LoadMode,
		Dir:     l.projectDir,
		Fset:    l.fset,
		Tests:   l.cfg.Index.IncludeTests,
	}

	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return fmt.Errorf("loading packages: %w", err)
	}

	var filtered []*packages.Package
	for _, pkg := range pkgs {
		if l.shouldExcludePackage(pkg) {
			l.logger.Debug("excluding package", zap.String("pkg", pkg.PkgPath))
			continue
		}
		filtered = append(filtered, pkg)
	}
	if len(filtered) == 0 {
		return fmt.Errorf("no Go packages found in %s", l.projectDir)
	}
	l.pkgs = filtered

	// Type errors are tolerated; SSA is still built for what type-checked.
	var errs []string
	packages.Visit(l.pkgs, nil, func(pkg *packages.Package) {
		for _, err := range pkg.Errors {
			errs = append(errs, fmt.Sprintf("%s: %s", pkg.PkgPath, err.Msg))
		}
	})
	l.errCount = len(errs)
	if len(errs) > 0 {
		l.logger.Warn("package loading errors", zap.Int("count", len(errs)))
		for _, msg := range errs[:min(maxReportedErrors, len(errs))] {
			l.logger.Warn("package error", zap.String("error", msg))
		}
	}
	return nil
}

// shouldExcludePackage reports whether any directory between the project root
// and the package directory is excluded.
func (l *Loader) shouldExcludePackage(pkg *packages.Package) bool {
	dir := packageDir(pkg)
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(l.projectDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && l.cfg.IsExcludedDir(part) {
			return true
		}
	}
	return false
}

// Packages returns the loaded packages.
func (l *Loader) Packages() []*packages.Package {
	return l.pkgs
}

// FileSet returns the file set used for parsing.
func (l *Loader) FileSet() *token.FileSet {
	return l.fset
}

// ErrorCount returns the number of package errors seen by the last Load.
func (l *Loader) ErrorCount() int {
	return l.errCount
}

// shouldExcludeFile checks if a file should be excluded from the graph.
func (l *Loader) shouldExcludeFile(file string) bool {
	if file == "" {
		return false
	}
	if !l.cfg.Index.IncludeTests && strings.HasSuffix(file, "_test.go") {
		return true
	}
	return l.cfg.IsExcludedFile(file)
}

// packageDir returns the directory of a package.
func packageDir(pkg *packages.Package) string {
	if len(pkg.GoFiles) > 0 {
		return filepath.Dir(pkg.GoFiles[0])
	}
	if len(pkg.OtherFiles) > 0 {
		return filepath.Dir(pkg.OtherFiles[0])
	}
	return ""
}
