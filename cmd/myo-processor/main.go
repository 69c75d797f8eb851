// MYOstack Processor - offline envelope and spectrum analysis of recordings
// This program replays binary recordings through the same filter, envelope
// and spectrum pipeline used during live acquisition and exports the results.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"myostack-collector/internal/config"
	"myostack-collector/internal/logging"
	"myostack-collector/internal/processor"
	"myostack-collector/internal/version"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	inputPattern string        // File pattern for input files (e.g., "recordings/myo_*.bin")
	outputFormat string        // Output format: csv, json, spectrum
	outputDir    string        // Output directory
	protocolName string        // Protocol version of the recordings
	channels     int           // Channels to analyze
	tickInterval time.Duration // Simulated tick period
	noFilters    bool          // Disable filter stages
	verbose      bool          // Enable verbose logging
	showVersion  bool          // Show version information
	dryRun       bool          // Show what would be processed without doing it
)

var rootCmd = &cobra.Command{
	Use:   "myo-processor",
	Short: "Offline envelope and spectrum analysis of MYOstack recordings",
	Long: `MYOstack Processor replays binary recordings through the acquisition
pipeline (notch and band-pass filters, envelope detector, spectrum estimator)
and exports per-channel statistics, the activation timeline and final spectra.

Supported output formats:
  - csv: channel summary followed by the activation timeline
  - json: complete result including spectra
  - spectrum: one row per frequency bin, one column per channel

Example usage:
  myo-processor --input "recordings/myo_*.bin"
  myo-processor --input "session.bin" --protocol v2.0 --output-format json
  myo-processor --input "*.bin" --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.Describe("myo-processor"))
			return nil
		}
		if inputPattern == "" {
			return fmt.Errorf("--input is required")
		}
		return runProcessor(afero.NewOsFs())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	// Input/Output flags
	rootCmd.Flags().StringVarP(&inputPattern, "input", "i", "", "input file pattern (e.g., 'recordings/myo_*.bin')")
	rootCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "csv", "output format (csv, json, spectrum)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "./analysis", "output directory")

	// Processing flags
	rootCmd.Flags().StringVarP(&protocolName, "protocol", "p", "v1.1", "protocol version the recordings were made with")
	rootCmd.Flags().IntVarP(&channels, "channels", "n", 9, "number of channels to analyze (1-9)")
	rootCmd.Flags().DurationVar(&tickInterval, "tick", 100*time.Millisecond, "simulated tick period")
	rootCmd.Flags().BoolVar(&noFilters, "no-filters", false, "analyze without notch and band-pass stages")

	// Control flags
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be processed without doing it")
}

func runProcessor(fs afero.Fs) error {
	fmt.Printf("╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║              MYOSTACK RECORDING PROCESSOR %-8s           ║\n", version.Info().Version)
	fmt.Printf("╚══════════════════════════════════════════════════════════════╝\n\n")

	cfg := config.DefaultConfig()
	cfg.Device.Protocol = protocolName
	cfg.Device.Channels = channels
	cfg.Session.TickInterval = tickInterval
	if noFilters {
		cfg.Filters.BandpassEnabled = false
		cfg.Filters.Notch50 = false
		cfg.Filters.Notch60 = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("🔧 Configuration:\n")
		fmt.Printf("   Input Pattern: %s\n", inputPattern)
		fmt.Printf("   Output Format: %s\n", outputFormat)
		fmt.Printf("   Output Directory: %s\n", outputDir)
		fmt.Printf("   Protocol: %s (%.0f Hz)\n", params.Version, params.SampleRate)
		fmt.Printf("   Channels: %d\n", channels)
		fmt.Printf("   Filters: band-pass %t, notch 50 Hz %t, notch 60 Hz %t\n",
			cfg.Filters.BandpassEnabled, cfg.Filters.Notch50, cfg.Filters.Notch60)
		fmt.Printf("   Dry Run: %t\n\n", dryRun)
	}

	files, err := findMatchingFiles(inputPattern)
	if err != nil {
		return fmt.Errorf("failed to find input files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found matching pattern '%s'. Make sure:\n  - Pattern includes correct path (e.g., 'recordings/myo_*.bin')\n  - Files exist and have .bin extension\n  - Pattern is quoted to prevent shell expansion", inputPattern)
	}

	fmt.Printf("📁 Found %d input files:\n", len(files))
	for i, file := range files {
		fmt.Printf("   %d. %s\n", i+1, filepath.Base(file))
	}
	fmt.Println()

	if dryRun {
		fmt.Printf("🔍 DRY RUN: Would process %d files as protocol %s\n", len(files), params.Version)
		fmt.Printf("📤 Would generate output in %s format to: %s\n", outputFormat, outputDir)
		return nil
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	proc, err := processor.NewProcessor(&processor.Config{
		Protocol:     params,
		Channels:     cfg.Device.Channels,
		Filters:      cfg.Filters,
		Gains:        cfg.Device.Gains,
		TickInterval: cfg.Session.TickInterval,
		Verbose:      verbose,
	}, fs, logger.WithField("tool", "myo-processor"))
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	failed := 0
	for _, file := range files {
		fmt.Printf("⚙️  Processing %s...\n", filepath.Base(file))
		result, err := proc.ProcessFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "   ❌ %v\n", err)
			failed++
			continue
		}

		outputFile := generateOutputFilename(file, outputFormat, outputDir)
		fmt.Printf("📤 Exporting results to %s...\n", outputFile)
		if err := exportResults(fs, result, outputFormat, outputFile); err != nil {
			return fmt.Errorf("failed to export results: %w", err)
		}
		displaySummary(result, outputFile)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be processed", failed, len(files))
	}
	return nil
}

// findMatchingFiles finds .bin files matching the input pattern
func findMatchingFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var binFiles []string
	for _, match := range matches {
		if strings.HasSuffix(strings.ToLower(match), ".bin") {
			binFiles = append(binFiles, match)
		}
	}
	return binFiles, nil
}

// generateOutputFilename derives the output name from the recording name
func generateOutputFilename(input, format, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	var suffix string
	switch format {
	case "json":
		suffix = "_analysis.json"
	case "spectrum":
		suffix = "_spectrum.csv"
	default:
		suffix = "_analysis.csv"
	}
	return filepath.Join(outputDir, base+suffix)
}

func exportResults(fs afero.Fs, result *processor.Result, format, filename string) error {
	switch format {
	case "csv":
		return result.ExportCSV(fs, filename)
	case "json":
		return result.ExportJSON(fs, filename)
	case "spectrum":
		return result.ExportSpectrumCSV(fs, filename)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func displaySummary(result *processor.Result, outputFile string) {
	fmt.Printf("\n✅ %s: %d rows, %.2f s, %d ticks\n\n", filepath.Base(result.File), result.Records, result.Duration, result.Ticks)

	fmt.Printf("┌─────────┬────────────┬────────────┬────────────┬────────────┬─────────────┐\n")
	fmt.Printf("│ Channel │       Mean │        RMS │ Peak Level │ Mean Level │ Dominant Hz │\n")
	fmt.Printf("├─────────┼────────────┼────────────┼────────────┼────────────┼─────────────┤\n")
	for _, c := range result.Channels {
		fmt.Printf("│ %7d │ %10.2f │ %10.2f │ %10.2f │ %10.2f │ %11.2f │\n",
			c.Channel, c.Mean, c.RMS, c.PeakLevel, c.MeanLevel, c.DominantFreq)
	}
	fmt.Printf("└─────────┴────────────┴────────────┴────────────┴────────────┴─────────────┘\n")
	fmt.Printf("📁 Output File: %s\n\n", outputFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
