// Package main implements the gofhir-snapshot CLI tool. It expands the
// differentials of FHIR StructureDefinitions into full snapshots, either
// for individual profile files or for a whole directory of definitions.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofhir/fhir/r4"

	fhirsnapshot "github.com/gofhir/snapshot"
	"github.com/gofhir/snapshot/generator"
	"github.com/gofhir/snapshot/loader"
	"github.com/gofhir/snapshot/registry"
	"github.com/gofhir/snapshot/service"
	"github.com/gofhir/snapshot/stream"
	"github.com/gofhir/snapshot/worker"
)

const usage = `gofhir-snapshot - FHIR StructureDefinition snapshot generator

Usage:
  gofhir-snapshot [options] <file>...
  gofhir-snapshot [options] -all

Examples:
  gofhir-snapshot -dir ./core my-patient.json
  gofhir-snapshot -dir ./core -out ./generated my-patient.json other.json
  gofhir-snapshot -dir ./core -all -out ./generated
  gofhir-snapshot -dir ./core -output json my-patient.json
  gofhir-snapshot -package hl7.fhir.r4.core@4.0.1 my-patient.json
  gofhir-snapshot -bundle profiles-resources.json my-patient.json

Options:
`

// OutputFormat specifies the issue report format.
type OutputFormat string

// Output format constants.
const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Config holds CLI configuration
type Config struct {
	Dirs        []string
	Packages    []string
	Bundles     []string
	RegistryURL string
	OutDir      string
	Output      OutputFormat
	All         bool
	Regenerate  bool
	CheckExprs  bool
	Workers     int
	Quiet       bool
	ShowVersion bool
	Help        bool
	Files       []string
}

// GenerationOutput represents the JSON output for one definition
type GenerationOutput struct {
	Resource string        `json:"resource"`
	URL      string        `json:"url,omitempty"`
	Valid    bool          `json:"valid"`
	Elements int           `json:"elements"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Issues   []IssueOutput `json:"issues,omitempty"`
	Duration string        `json:"duration"`
}

// IssueOutput represents a single issue in JSON output
type IssueOutput struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("gofhir-snapshot v%s\n", fhirsnapshot.Version)
		os.Exit(0)
	}

	if config.Help || (len(config.Files) == 0 && !config.All) {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(config))
}

func parseFlags() *Config {
	config := &Config{Output: OutputText}

	var dirs, packages, bundles, output string

	flag.StringVar(&dirs, "dir", "", "Directories of StructureDefinition JSON to preload (comma-separated)")
	flag.StringVar(&packages, "package", "", "FHIR packages to fetch and preload, as name@version (comma-separated)")
	flag.StringVar(&bundles, "bundle", "", "Bundle files of StructureDefinitions to preload (comma-separated)")
	flag.StringVar(&config.RegistryURL, "registry", "", "Package registry URL (default: packages.fhir.org)")
	flag.StringVar(&config.OutDir, "out", "", "Directory to write generated definitions to (default: stdout)")
	flag.StringVar(&output, "output", "text", "Issue report format: text, json")
	flag.BoolVar(&config.All, "all", false, "Generate snapshots for every loaded definition")
	flag.BoolVar(&config.Regenerate, "regen", false, "Regenerate snapshots that are already present")
	flag.BoolVar(&config.CheckExprs, "check", false, "Compile-check FHIRPath constraint expressions")
	flag.IntVar(&config.Workers, "workers", 0, "Parallel workers for -all (default: number of CPUs)")
	flag.BoolVar(&config.Quiet, "quiet", false, "Only show errors and warnings")
	flag.BoolVar(&config.ShowVersion, "v", false, "Show version")
	flag.BoolVar(&config.Help, "help", false, "Show help")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if dirs != "" {
		config.Dirs = strings.Split(dirs, ",")
	}
	if packages != "" {
		config.Packages = strings.Split(packages, ",")
	}
	if bundles != "" {
		config.Bundles = strings.Split(bundles, ",")
	}

	switch strings.ToLower(output) {
	case "json":
		config.Output = OutputJSON
	default:
		config.Output = OutputText
	}

	config.Files = flag.Args()

	return config
}

func run(config *Config) int {
	store := loader.NewInMemoryProfileService()
	converter := loader.NewR4Converter()
	ctx := context.Background()

	if err := loadPackages(ctx, config, store); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if err := loadBundles(ctx, config, store); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	for _, dir := range config.Dirs {
		dir = strings.TrimSpace(dir)
		n, err := store.LoadAllFromDirectory(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", dir, err)
			return 1
		}
		if !config.Quiet {
			fmt.Fprintf(os.Stderr, "Loaded %d definition(s) from %s\n", n, dir)
		}
	}

	// Profiles named on the command line are loaded into the store too, so
	// they can serve as bases for each other.
	var targets []*service.StructureDefinition
	names := make(map[*service.StructureDefinition]string)
	for _, file := range config.Files {
		matches, err := filepath.Glob(file)
		if err != nil || len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "No files match: %s\n", file)
			return 1
		}
		for _, match := range matches {
			sd, err := loadProfileFile(store, converter, match)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", match, err)
				return 1
			}
			targets = append(targets, sd)
			names[sd] = match
		}
	}

	opts := []fhirsnapshot.Option{
		fhirsnapshot.WithRegenerateExisting(config.Regenerate),
		fhirsnapshot.WithConstraintExpressionCheck(config.CheckExprs),
		fhirsnapshot.WithSnapshotCache(256),
	}

	if config.All {
		return runAll(config, store, converter, opts)
	}

	gen := generator.New(store, opts...)
	hasErrors := false
	outputs := make([]GenerationOutput, 0, len(targets))

	for _, sd := range targets {
		output, failed := generateOne(gen, sd, names[sd], config, converter)
		outputs = append(outputs, output)
		if failed {
			hasErrors = true
		}
	}

	if config.Output == OutputJSON {
		jsonOutput, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Println(string(jsonOutput))
	}

	if hasErrors {
		return 1
	}
	return 0
}

// loadPackages fetches the requested FHIR packages from the registry
// and feeds their StructureDefinitions into the store. Cached packages
// are reused without a network round trip.
func loadPackages(ctx context.Context, config *Config, store *loader.InMemoryProfileService) error {
	if len(config.Packages) == 0 {
		return nil
	}

	var clientOpts []registry.ClientOption
	if config.RegistryURL != "" {
		clientOpts = append(clientOpts, registry.WithRegistryURL(config.RegistryURL))
	}
	client := registry.NewClient(clientOpts...)
	pkgLoader := registry.NewPackageLoader(store)

	for _, ref := range config.Packages {
		pkg := parsePackageRef(strings.TrimSpace(ref))
		dir, err := client.GetPackage(ctx, pkg.Name, pkg.Version)
		if err != nil {
			return fmt.Errorf("fetching package %s: %w", pkg, err)
		}
		stats, err := pkgLoader.LoadPackage(dir)
		if err != nil {
			return fmt.Errorf("loading package %s: %w", pkg, err)
		}
		if !config.Quiet {
			fmt.Fprintf(os.Stderr, "Loaded %d definition(s) from package %s (%d with snapshot)\n",
				stats.StructureDefinitions, pkg, stats.WithSnapshot)
		}
	}
	return nil
}

// parsePackageRef splits a "name@version" argument. A bare name means
// the latest published version.
func parsePackageRef(s string) registry.PackageRef {
	name, version, ok := strings.Cut(s, "@")
	if !ok || version == "" {
		version = registry.VersionLatest
	}
	return registry.PackageRef{Name: name, Version: version}
}

// loadBundles streams Bundle files of StructureDefinitions into the
// store. Files like profiles-resources.json hold thousands of entries,
// so they are decoded one entry at a time.
func loadBundles(ctx context.Context, config *Config, store *loader.InMemoryProfileService) error {
	for _, path := range config.Bundles {
		path = strings.TrimSpace(path)
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		stats := stream.LoadBundle(ctx, f, store)
		f.Close()
		if stats.HasErrors() {
			return fmt.Errorf("loading bundle %s: %d entries failed, first: %v",
				path, len(stats.Errors), stats.Errors[0])
		}
		if !config.Quiet {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, stats.Summary())
		}
	}
	return nil
}

// loadProfileFile reads one StructureDefinition JSON file, registers it
// with the store, and returns the parsed definition.
func loadProfileFile(store *loader.InMemoryProfileService, converter *loader.R4Converter, path string) (*service.StructureDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw r4.StructureDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	sd := converter.ConvertStructureDefinition(&raw)
	if err := store.LoadStructureDefinition(sd); err != nil {
		return nil, err
	}
	return sd, nil
}

func generateOne(gen *generator.Generator, sd *service.StructureDefinition, name string, config *Config, converter *loader.R4Converter) (GenerationOutput, bool) {
	ctx := context.Background()
	startTime := time.Now()

	out, err := gen.GenerateSnapshot(ctx, sd)
	duration := time.Since(startTime)

	outcome := gen.Outcome()
	output := GenerationOutput{
		Resource: name,
		URL:      sd.URL,
		Valid:    err == nil && !outcome.HasErrors(),
		Errors:   outcome.ErrorCount(),
		Warnings: len(outcome.Warnings()),
		Duration: duration.Round(time.Microsecond).String(),
	}
	if out != nil {
		output.Elements = len(out.Snapshot)
	}
	for _, iss := range outcome.Issues {
		output.Issues = append(output.Issues, IssueOutput{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
		})
	}

	if config.Output == OutputText {
		printTextResult(name, sd.URL, &output, config)
	}

	if err != nil {
		return output, true
	}

	if werr := writeDefinition(config, converter, out, name); werr != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", name, werr)
		return output, true
	}
	return output, outcome.HasErrors()
}

// writeDefinition marshals the generated definition back to FHIR JSON,
// either into the output directory or to stdout.
func writeDefinition(config *Config, converter *loader.R4Converter, sd *service.StructureDefinition, name string) error {
	exported := converter.ExportStructureDefinition(sd)
	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return err
	}

	if config.OutDir == "" {
		if config.Output == OutputText {
			fmt.Println(string(data))
		}
		return nil
	}
	if err := os.MkdirAll(config.OutDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(config.OutDir, filepath.Base(name)), data, 0o644)
}

// runAll updates every loaded definition in dependency order across a
// worker pool, then writes the results.
func runAll(config *Config, store *loader.InMemoryProfileService, converter *loader.R4Converter, opts []fhirsnapshot.Option) int {
	updater := worker.NewBatchUpdater(func() service.SnapshotGenerator {
		return generator.New(store, opts...)
	}, config.Workers)

	defns := store.Definitions()
	startTime := time.Now()
	result := updater.UpdateAll(context.Background(), defns)
	duration := time.Since(startTime)

	if !config.Quiet {
		fmt.Fprintf(os.Stderr, "Updated %d definition(s) in %d wave(s), %d failed, %s\n",
			len(result.Updated), result.Waves, len(result.Failed), duration.Round(time.Millisecond))
	}

	failedURLs := make([]string, 0, len(result.Failed))
	for url := range result.Failed {
		failedURLs = append(failedURLs, url)
	}
	sort.Strings(failedURLs)
	for _, url := range failedURLs {
		fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", url, result.Failed[url])
	}

	if config.OutDir != "" {
		for _, sd := range defns {
			if !sd.HasSnapshot() {
				continue
			}
			name := sanitizeFileName(sd.Name, sd.URL)
			if err := writeDefinition(config, converter, sd, name); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", sd.URL, err)
				return 1
			}
		}
	}

	if result.Ok() {
		return 0
	}
	return 1
}

// sanitizeFileName derives an output file name from a definition's name
// or, failing that, the tail of its canonical URL.
func sanitizeFileName(name, url string) string {
	if name == "" {
		if idx := strings.LastIndex(url, "/"); idx >= 0 {
			name = url[idx+1:]
		} else {
			name = url
		}
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
	return "StructureDefinition-" + name + ".json"
}

func printTextResult(name, url string, output *GenerationOutput, config *Config) {
	status := "OK"
	if !output.Valid {
		status = "FAILED"
	}

	fmt.Fprintf(os.Stderr, "== %s ==\n", name)
	fmt.Fprintf(os.Stderr, "Profile: %s\n", url)
	fmt.Fprintf(os.Stderr, "Status: %s (%d elements)\n", status, output.Elements)
	fmt.Fprintf(os.Stderr, "Errors: %d, Warnings: %d, Duration: %s\n", output.Errors, output.Warnings, output.Duration)

	if len(output.Issues) > 0 {
		fmt.Fprintln(os.Stderr, "\nIssues:")
		for _, iss := range output.Issues {
			if config.Quiet && iss.Severity == string(fhirsnapshot.SeverityInformation) {
				continue
			}
			location := ""
			if len(iss.Expression) > 0 {
				location = fmt.Sprintf(" @ %s", strings.Join(iss.Expression, ", "))
			}
			fmt.Fprintf(os.Stderr, "  %s [%s] %s%s\n", severityIcon(iss.Severity), iss.Code, iss.Diagnostics, location)
		}
	}

	fmt.Fprintln(os.Stderr)
}

func severityIcon(severity string) string {
	switch fhirsnapshot.IssueSeverity(severity) {
	case fhirsnapshot.SeverityFatal, fhirsnapshot.SeverityError:
		return "ERROR"
	case fhirsnapshot.SeverityWarning:
		return "WARN "
	case fhirsnapshot.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}
