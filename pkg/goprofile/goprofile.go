// Package goprofile turns a Go cover profile into a coverage.Report.
//
// Each package import path becomes a target, each profiled source file a
// file, and each function declaration a function. Line counts are derived
// from the profile blocks: a line is executable when a block with statements
// spans it and covered when one of those blocks ran.
package goprofile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/tools/cover"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

// ErrNoModule is returned when the module path cannot be determined.
var ErrNoModule = errors.New("module directive not found in go.mod")

// ErrSourceMissing is returned in strict mode when a profiled file cannot be read.
var ErrSourceMissing = errors.New("profiled source file not found")

// Options tunes Parse.
type Options struct {
	// ModulePath overrides detection from srcRoot/go.mod.
	ModulePath string
	// Strict fails on unreadable source files instead of skipping them.
	Strict bool
	Logger *slog.Logger
}

const (
	lineNone = iota
	lineUncovered
	lineCovered
)

// Parse reads the profile at profilePath and resolves its files under srcRoot.
func Parse(profilePath, srcRoot string, opts Options) (coverage.Report, error) {
	profiles, err := cover.ParseProfiles(profilePath)
	if err != nil {
		return coverage.Report{}, fmt.Errorf("parsing coverage profile: %w", err)
	}

	return FromProfiles(profiles, srcRoot, opts)
}

// FromProfiles converts already parsed profiles.
func FromProfiles(profiles []*cover.Profile, srcRoot string, opts Options) (coverage.Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	modPath := opts.ModulePath
	if modPath == "" {
		detected, err := detectModulePath(srcRoot)
		if err != nil {
			return coverage.Report{}, fmt.Errorf("detecting module path: %w", err)
		}

		modPath = detected
	}

	var report coverage.Report

	index := make(map[string]int)
	fset := token.NewFileSet()

	for _, p := range profiles {
		relPath, inModule := strings.CutPrefix(p.FileName, modPath+"/")
		if !inModule {
			relPath = p.FileName
		}

		file, err := buildFile(fset, filepath.Join(srcRoot, filepath.FromSlash(relPath)), relPath, p.Blocks)
		if err != nil {
			if opts.Strict {
				return coverage.Report{}, err
			}

			logger.Warn("skipping profiled file", "file", p.FileName, "error", err)

			continue
		}

		pkg := path.Dir(p.FileName)

		i, ok := index[pkg]
		if !ok {
			i = len(report.Targets)
			index[pkg] = i
			report.Targets = append(report.Targets, coverage.Target{Name: pkg})
		}

		report.Targets[i].Files = append(report.Targets[i].Files, file)
	}

	return report, nil
}

func buildFile(fset *token.FileSet, fullPath, relPath string, blocks []cover.ProfileBlock) (coverage.File, error) {
	src, err := os.ReadFile(fullPath)
	if err != nil {
		return coverage.File{}, fmt.Errorf("%w: %s: %w", ErrSourceMissing, relPath, err)
	}

	parsed, err := parser.ParseFile(fset, fullPath, src, parser.SkipObjectResolution)
	if err != nil {
		return coverage.File{}, fmt.Errorf("parse %s: %w", relPath, err)
	}

	lines := lineCoverage(bytes.Count(src, []byte("\n"))+1, blocks)

	file := coverage.File{Name: path.Base(relPath), Path: relPath}

	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}

		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line

		f := coverage.Function{Name: funcName(fn), LineNumber: start}

		for line := start; line <= end && line <= len(lines); line++ {
			switch lines[line-1] {
			case lineCovered:
				f.ExecutableLines++
				f.CoveredLines++
			case lineUncovered:
				f.ExecutableLines++
			}
		}

		f.ExecutionCount = maxCount(blocks, start, end)
		file.Functions = append(file.Functions, f)
	}

	return file, nil
}

func lineCoverage(lineCount int, blocks []cover.ProfileBlock) []int {
	lines := make([]int, lineCount)

	for _, b := range blocks {
		if b.NumStmt == 0 {
			continue
		}

		for line := max(b.StartLine, 1); line <= b.EndLine && line <= lineCount; line++ {
			switch {
			case b.Count > 0:
				lines[line-1] = lineCovered
			case lines[line-1] == lineNone:
				lines[line-1] = lineUncovered
			}
		}
	}

	return lines
}

func maxCount(blocks []cover.ProfileBlock, start, end int) int {
	best := 0

	for _, b := range blocks {
		if b.StartLine >= start && b.EndLine <= end && b.Count > best {
			best = b.Count
		}
	}

	return best
}

func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}

	return receiverName(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func receiverName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return "(*" + receiverName(e.X) + ")"
	case *ast.IndexExpr:
		return receiverName(e.X)
	case *ast.IndexListExpr:
		return receiverName(e.X)
	case *ast.ParenExpr:
		return receiverName(e.X)
	case *ast.Ident:
		return e.Name
	default:
		return "?"
	}
}

func detectModulePath(srcRoot string) (string, error) {
	f, err := os.Open(filepath.Join(srcRoot, "go.mod"))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if modPath, found := strings.CutPrefix(line, "module "); found {
			return strings.Trim(strings.TrimSpace(modPath), `"`), nil
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return "", scanErr
	}

	return "", ErrNoModule
}
