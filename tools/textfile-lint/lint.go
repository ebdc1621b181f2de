package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// LintResult holds everything found in one textfile
type LintResult struct {
	Source      string
	Age         time.Duration
	Families    int
	Samples     int
	FamilyLines []string
	Problems    []string
}

// Config holds the configuration for the lint run
type Config struct {
	File    string
	Prefix  string
	MaxAge  time.Duration
	Verbose bool
}

func main() {
	var config Config

	flag.StringVar(&config.File, "file", "", "Textfile to lint (reads stdin when empty)")
	flag.StringVar(&config.Prefix, "prefix", "nvsmi_", "Metric name prefix every family must carry")
	flag.DurationVar(&config.MaxAge, "max-age", 0, "Fail when the file is older than this (0 disables the check)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Print every metric family")
	flag.Parse()

	result, err := lintFile(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	printSummary(result, config)
	if len(result.Problems) > 0 {
		os.Exit(1)
	}
}

func lintFile(config Config) (*LintResult, error) {
	result := &LintResult{Source: "stdin"}

	var in io.Reader = os.Stdin
	if config.File != "" {
		f, err := os.Open(config.File)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		result.Source = config.File
		result.Age = time.Since(fi.ModTime())
	}

	// Parse the metrics
	parser := expfmt.TextParser{}
	metricFamilies, err := parser.TextToMetricFamilies(in)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}

	// Walk the families in name order so repeated runs report identically
	names := make([]string, 0, len(metricFamilies))
	for name := range metricFamilies {
		names = append(names, name)
	}
	sort.Strings(names)

	result.Families = len(names)
	for _, name := range names {
		mf := metricFamilies[name]
		result.Samples += len(mf.Metric)
		result.FamilyLines = append(result.FamilyLines,
			fmt.Sprintf("%s: %d sample(s), %s", name, len(mf.Metric), strings.ToLower(mf.GetType().String())))

		if !strings.HasPrefix(name, config.Prefix) {
			result.Problems = append(result.Problems,
				fmt.Sprintf("family %s does not carry the %s prefix", name, config.Prefix))
		}
		if mf.GetType() != dto.MetricType_GAUGE {
			result.Problems = append(result.Problems,
				fmt.Sprintf("family %s is typed %s, the exporter only writes gauges", name, strings.ToLower(mf.GetType().String())))
		}
		if mf.GetHelp() == "" {
			result.Problems = append(result.Problems,
				fmt.Sprintf("family %s has no help text", name))
		}
		if len(mf.Metric) == 0 {
			result.Problems = append(result.Problems,
				fmt.Sprintf("family %s declares no samples", name))
		}

		// The textfile collector rejects the whole file on duplicate series
		seen := make(map[string]struct{}, len(mf.Metric))
		for _, metric := range mf.Metric {
			sig := labelSignature(metric)
			if _, ok := seen[sig]; ok {
				result.Problems = append(result.Problems,
					fmt.Sprintf("family %s repeats the label set {%s}", name, sig))
				continue
			}
			seen[sig] = struct{}{}
		}
	}

	if config.MaxAge > 0 && result.Age > config.MaxAge {
		result.Problems = append(result.Problems,
			fmt.Sprintf("file is %v old, over the %v limit (is the cron job still running?)",
				result.Age.Round(time.Second), config.MaxAge))
	}

	return result, nil
}

// labelSignature renders a metric's labels in name order, so identical
// label sets compare equal regardless of how the file orders them.
func labelSignature(metric *dto.Metric) string {
	pairs := make([]string, 0, len(metric.Label))
	for _, lp := range metric.Label {
		pairs = append(pairs, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func printSummary(result *LintResult, config Config) {
	fmt.Println("=== Textfile Lint Summary ===")
	fmt.Printf("Source: %s\n", result.Source)
	if result.Age > 0 {
		fmt.Printf("Age: %v\n", result.Age.Round(time.Second))
	}
	fmt.Printf("Families: %d\n", result.Families)
	fmt.Printf("Samples: %d\n", result.Samples)

	if config.Verbose {
		fmt.Println("\nFamilies:")
		for _, line := range result.FamilyLines {
			fmt.Printf("  %s\n", line)
		}
	}

	if len(result.Problems) == 0 {
		fmt.Println("\n✓ OK: file is safe for the textfile collector")
		return
	}

	fmt.Printf("\n✗ %d problem(s) found:\n", len(result.Problems))
	for _, p := range result.Problems {
		fmt.Printf("  • %s\n", p)
	}
}
