// bench-codecs measures size, time and heap use of every archive codec on
// a synthetic coverage report, or on a report already in an archive.
//
// Usage:
//
//	go run ./scripts/bench-codecs --targets 200 --files 40 --functions 25 \
//	  --rounds 5 --profile-dir docs/profiles/codecs
//	go run ./scripts/bench-codecs --archive .covarchive --day 2024-03-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/persist"
)

type result struct {
	kind       codec.Kind
	packed     int
	compress   time.Duration
	decompress time.Duration
	heapDelta  uint64
}

func main() {
	targets := flag.Int("targets", 100, "Synthetic targets")
	files := flag.Int("files", 30, "Synthetic files per target")
	functions := flag.Int("functions", 20, "Synthetic functions per file")
	rounds := flag.Int("rounds", 3, "Rounds per codec; the fastest is reported")
	level := flag.Int("level", 0, "Compression level (0 = codec default)")
	archiveDir := flag.String("archive", "", "Read the report from this archive instead of generating one")
	day := flag.String("day", "", "Archived day to read (default: newest)")
	profileDir := flag.String("profile-dir", "", "Directory to write CPU and heap profiles")

	flag.Parse()

	meta, err := loadReport(*archiveDir, *day, *targets, *files, *functions)
	if err != nil {
		log.Fatalf("load report: %v", err)
	}

	raw, err := persist.Marshal(persist.NewJSONCodec(), meta)
	if err != nil {
		log.Fatalf("marshal report: %v", err)
	}

	log.Printf("report: %d targets, %s of JSON", len(meta.Coverage.Targets), humanize.IBytes(uint64(len(raw))))

	stopProfile := startCPUProfile(*profileDir)
	defer stopProfile()

	var results []result

	for _, kind := range codec.Kinds() {
		if !kind.Compressed() {
			continue
		}

		res, benchErr := bench(kind, raw, *rounds, *level)
		if benchErr != nil {
			log.Fatalf("%s: %v", kind, benchErr)
		}

		results = append(results, res)
	}

	writeHeapProfile(*profileDir)
	printResults(len(raw), results)
}

func loadReport(dir, day string, targets, files, functions int) (coverage.MetaReport, error) {
	if dir == "" {
		return synthetic(targets, files, functions), nil
	}

	store, err := archive.New(dir)
	if err != nil {
		return coverage.MetaReport{}, err
	}

	entries := store.SortedArchives()
	if len(entries) == 0 {
		return coverage.MetaReport{}, archive.ErrNoReport
	}

	entry := entries[0]

	if day != "" {
		entry, err = store.Entry(day)
		if err != nil {
			return coverage.MetaReport{}, err
		}
	}

	return store.Report(context.Background(), entry)
}

func synthetic(targets, files, functions int) coverage.MetaReport {
	report := coverage.Report{Targets: make([]coverage.Target, 0, targets)}

	for ti := range targets {
		target := coverage.Target{Name: fmt.Sprintf("Target%03d", ti)}

		for fi := range files {
			name := fmt.Sprintf("file_%03d.go", fi)
			file := coverage.File{Name: name, Path: filepath.Join("src", target.Name, name)}

			for fn := range functions {
				executable := 5 + (ti+fi+fn)%40
				file.Functions = append(file.Functions, coverage.Function{
					Name:            fmt.Sprintf("Func%d", fn),
					LineNumber:      1 + fn*45,
					ExecutableLines: executable,
					ExecutionCount:  (ti * fn) % 7,
					CoveredLines:    executable * ((fi + fn) % 5) / 4,
				})
			}

			target.Files = append(target.Files, file)
		}

		report.Targets = append(report.Targets, target)
	}

	return coverage.MetaReport{
		FileInfo: coverage.FileInfo{Application: "bench", Type: "synthetic", Date: time.Now()},
		Coverage: report,
	}
}

func bench(kind codec.Kind, raw []byte, rounds, level int) (result, error) {
	c, err := codec.New(kind, codec.WithLevel(level))
	if err != nil {
		return result{}, err
	}

	res := result{kind: kind, compress: time.Duration(1<<63 - 1), decompress: time.Duration(1<<63 - 1)}

	var before, after runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&before)

	for range max(rounds, 1) {
		start := time.Now()

		packed, compressErr := c.Compress(raw)
		if compressErr != nil {
			return result{}, compressErr
		}

		res.compress = min(res.compress, time.Since(start))
		res.packed = len(packed)

		start = time.Now()

		unpacked, decompressErr := c.Decompress(packed)
		if decompressErr != nil {
			return result{}, decompressErr
		}

		res.decompress = min(res.decompress, time.Since(start))

		if len(unpacked) != len(raw) {
			return result{}, fmt.Errorf("round trip returned %d bytes, want %d", len(unpacked), len(raw))
		}
	}

	runtime.ReadMemStats(&after)
	res.heapDelta = after.TotalAlloc - before.TotalAlloc

	return res, nil
}

func printResults(rawSize int, results []result) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Codec", "Size", "Ratio", "Compress", "Decompress", "Allocated"})

	for _, r := range results {
		tbl.AppendRow(table.Row{
			r.kind.String(),
			humanize.IBytes(uint64(r.packed)),
			fmt.Sprintf("%.1fx", float64(rawSize)/float64(max(r.packed, 1))),
			r.compress.Round(time.Microsecond),
			r.decompress.Round(time.Microsecond),
			humanize.IBytes(r.heapDelta),
		})
	}

	tbl.Render()
}

func startCPUProfile(dir string) func() {
	if dir == "" {
		return func() {}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("mkdir profile-dir: %v", err)
	}

	cpuPath := filepath.Join(dir, "cpu.prof")

	cpuFile, err := os.Create(cpuPath)
	if err != nil {
		log.Fatalf("create cpu profile: %v", err)
	}

	if startErr := pprof.StartCPUProfile(cpuFile); startErr != nil {
		log.Fatalf("start cpu profile: %v", startErr)
	}

	log.Printf("CPU profiling enabled -> %s", cpuPath)

	return func() {
		pprof.StopCPUProfile()
		cpuFile.Close()
	}
}

func writeHeapProfile(dir string) {
	if dir == "" {
		return
	}

	heapPath := filepath.Join(dir, "heap.prof")

	f, err := os.Create(heapPath)
	if err != nil {
		log.Fatalf("create heap profile: %v", err)
	}
	defer f.Close()

	runtime.GC()

	if writeErr := pprof.WriteHeapProfile(f); writeErr != nil {
		log.Fatalf("write heap profile: %v", writeErr)
	}

	log.Printf("heap profile -> %s", heapPath)
}
