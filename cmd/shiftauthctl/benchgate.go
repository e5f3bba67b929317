package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultRegressionLimit = 0.30

// gatedBenchmarks are the hot paths compared between runs of
// `go test -bench . -count N`.
var gatedBenchmarks = map[string][]string{
	"BenchmarkValidateAccess": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":        {"ns/op"},
	"BenchmarkMetricsInc":     {"ns/op"},
}

// benchSamples maps benchmark name to unit to observed values.
type benchSamples map[string]map[string][]float64

func runBenchgate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("benchgate", flag.ContinueOnError)
	baselinePath := fs.String("baseline", "", "benchmark output of the reference build")
	candidatePath := fs.String("candidate", "", "benchmark output of the build under test")
	limit := fs.Float64("threshold", defaultRegressionLimit, "largest tolerated slowdown ratio (0.30 = +30%)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *baselinePath == "" || *candidatePath == "" {
		return errors.New("benchgate: -baseline and -candidate are required")
	}
	if *limit < 0 {
		return errors.New("benchgate: -threshold must be >= 0")
	}

	baseline, err := readBenchFile(*baselinePath)
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	candidate, err := readBenchFile(*candidatePath)
	if err != nil {
		return fmt.Errorf("candidate: %w", err)
	}

	problems := compareBenchmarks(stdout, baseline, candidate, *limit)
	if len(problems) > 0 {
		return fmt.Errorf("benchgate: %s", strings.Join(problems, "; "))
	}
	return nil
}

func readBenchFile(path string) (benchSamples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchOutput(f)
}

// parseBenchOutput collects value/unit pairs of gated benchmarks from
// standard `go test -bench` output.
func parseBenchOutput(r io.Reader) (benchSamples, error) {
	samples := benchSamples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcSuffix(fields[0])
		if _, ok := gatedBenchmarks[name]; !ok {
			continue
		}
		units := samples[name]
		if units == nil {
			units = map[string][]float64{}
			samples[name] = units
		}
		// fields[1] is the iteration count.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			units[fields[i+1]] = append(units[fields[i+1]], v)
		}
	}
	return samples, sc.Err()
}

// compareBenchmarks prints one row per gated metric and returns the
// metrics that are missing or slower than limit allows.
func compareBenchmarks(w io.Writer, baseline, candidate benchSamples, limit float64) []string {
	names := make([]string, 0, len(gatedBenchmarks))
	for name := range gatedBenchmarks {
		names = append(names, name)
	}
	sort.Strings(names)

	var problems []string
	fmt.Fprintln(w, "benchmark metric baseline candidate delta")
	for _, name := range names {
		for _, unit := range gatedBenchmarks[name] {
			base, cand := median(baseline[name][unit]), median(candidate[name][unit])
			if len(baseline[name][unit]) == 0 || len(candidate[name][unit]) == 0 {
				problems = append(problems, fmt.Sprintf("no samples for %s %s", name, unit))
				continue
			}
			if base <= 0 {
				// Zero-alloc baselines only regress when the candidate allocates.
				if cand > 0 {
					problems = append(problems, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, cand))
				}
				fmt.Fprintf(w, "%s %s %.3f %.3f n/a\n", name, unit, base, cand)
				continue
			}
			delta := (cand - base) / base
			fmt.Fprintf(w, "%s %s %.3f %.3f %+.2f%%\n", name, unit, base, cand, delta*100)
			if delta > limit {
				problems = append(problems, fmt.Sprintf("%s %s slower by %+.2f%% (limit %+.2f%%)", name, unit, delta*100, limit*100))
			}
		}
	}
	return problems
}

// trimProcSuffix drops the -GOMAXPROCS suffix go test appends.
func trimProcSuffix(name string) string {
	if i := strings.LastIndexByte(name, '-'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
