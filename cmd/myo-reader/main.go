// MYOstack Reader - inspects binary recordings made by the collector
// It shows the recording header, decoded rows, per-channel statistics, a hex
// dump and an ASCII graph of one channel.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"myostack-collector/internal/frame"
	"myostack-collector/internal/protocol"
	"myostack-collector/internal/recorder"
	"myostack-collector/internal/version"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	protocolName string
	showRows     int
	showStats    bool
	showHex      int
	showGraph    bool
	graphChannel int
	graphWidth   int
	graphHeight  int
	graphSamples int
	showVersion  bool
)

var rootCmd = &cobra.Command{
	Use:   "myo-reader [file.bin]",
	Short: "Display contents of MYOstack recordings",
	Long: `MYOstack Reader displays the header and sample data of a binary
recording (.bin) and its text mirror (.txt).

Display modes:
  --rows N     Show the first N decoded rows (raw and scaled)
  --hex N      Hex dump of the first N records
  --stats      Per-channel statistics of scaled values
  --graph      ASCII graph of one channel over time`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.Describe("myo-reader"))
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("filename required")
		}
		return displayFile(afero.NewOsFs(), args[0])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&protocolName, "protocol", "p", "", "protocol version used for scaling (default: from text mirror, else v1.1)")
	rootCmd.Flags().IntVarP(&showRows, "rows", "r", 0, "number of decoded rows to display")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "show per-channel statistics")
	rootCmd.Flags().IntVar(&showHex, "hex", 0, "number of records to hex dump")
	rootCmd.Flags().BoolVarP(&showGraph, "graph", "g", false, "draw an ASCII graph of one channel")
	rootCmd.Flags().IntVar(&graphChannel, "channel", 1, "channel to graph (1-9)")
	rootCmd.Flags().IntVar(&graphWidth, "graph-width", 80, "width of the ASCII graph in characters")
	rootCmd.Flags().IntVar(&graphHeight, "graph-height", 20, "height of the ASCII graph in lines")
	rootCmd.Flags().IntVar(&graphSamples, "graph-samples", 5000, "maximum number of samples in the graph")
}

func displayFile(fs afero.Fs, filename string) error {
	info, err := fs.Stat(filename)
	if err != nil {
		return fmt.Errorf("cannot open recording: %w", err)
	}

	playback, err := recorder.LoadPlayback(fs, filename)
	if err != nil {
		return err
	}

	meta, metaErr := recorder.ReadMetadata(fs, recorder.MirrorPath(filename))
	params, err := resolveProtocol(meta)
	if err != nil {
		return err
	}

	fmt.Printf("MYOSTACK RECORDING READER %s\n\n", version.Info().Version)
	fmt.Printf("📁 File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	fmt.Printf("Size: %.2f KB (%d bytes)\n", float64(info.Size())/1024, info.Size())
	fmt.Printf("Modified: %s\n\n", info.ModTime().Format("2006-01-02 15:04:05"))

	fmt.Printf("📋 Recording:\n")
	if metaErr == nil {
		fmt.Printf("Session: %s\n", meta.SessionID)
		fmt.Printf("Started: %s\n", meta.Started.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Printf("Text mirror: unavailable (%v)\n", metaErr)
	}
	fmt.Printf("Protocol: %s (offset %.0f, coefficient %.6f)\n", params.Version, params.ReferenceOffset, params.VoltageCoeff)
	fmt.Printf("Rows: %d\n", playback.Len())
	fmt.Printf("Duration: %.3f s at %.0f Hz\n\n", float64(playback.Len())/params.SampleRate, params.SampleRate)

	if showRows > 0 {
		displayRows(playback, params, showRows)
	}
	if showHex > 0 {
		displayHex(playback, showHex)
	}
	if showStats {
		displayStatistics(channelStats(playback, params))
	}
	if showGraph {
		if graphChannel < 1 || graphChannel > protocol.MaxChannels {
			return fmt.Errorf("graph channel %d outside 1..%d", graphChannel, protocol.MaxChannels)
		}
		values := channelValues(playback, params, graphChannel-1, graphSamples)
		fmt.Print(renderGraph(values, float64(playback.Len())/params.SampleRate, graphWidth, graphHeight))
	}
	return nil
}

func resolveProtocol(meta *recorder.Metadata) (protocol.Params, error) {
	name := protocolName
	if name == "" && meta != nil && meta.Protocol != "" {
		name = string(meta.Protocol)
	}
	if name == "" {
		name = string(protocol.V11)
	}
	return frame.Protocol(name)
}

func displayRows(p *recorder.Playback, params protocol.Params, n int) {
	if n > p.Len() {
		n = p.Len()
	}
	fmt.Printf("🔢 First %d rows (raw / scaled):\n", n)
	for i := 0; i < n; i++ {
		row := p.Row(i)
		fmt.Printf("%8.3f |", float64(i)/params.SampleRate)
		for _, v := range row.Raw {
			fmt.Printf(" %5d", v)
		}
		fmt.Printf(" |")
		for _, v := range row.Raw {
			fmt.Printf(" %8.2f", params.Scale(v, 1))
		}
		fmt.Println()
	}
	fmt.Println()
}

func displayHex(p *recorder.Playback, n int) {
	if n > p.Len() {
		n = p.Len()
	}
	fmt.Printf("🔍 Hex dump of %d records (%d bytes each):\n", n, protocol.RecordSize)
	for i := 0; i < n; i++ {
		rec := frame.AppendRecord(nil, p.Row(i))
		fmt.Printf("%08x: ", i*protocol.RecordSize)
		for j, b := range rec {
			if j > 0 && j%2 == 0 {
				fmt.Print(" ")
			}
			fmt.Printf("%02x", b)
		}
		fmt.Println()
	}
	fmt.Println()
}

// Stats holds per-channel statistics of scaled values
type Stats struct {
	Channel  int
	Min, Max float64
	Mean     float64
	RMS      float64
	StdDev   float64
}

func channelStats(p *recorder.Playback, params protocol.Params) []Stats {
	out := make([]Stats, protocol.MaxChannels)
	sum := make([]float64, protocol.MaxChannels)
	sumSq := make([]float64, protocol.MaxChannels)
	for ch := range out {
		out[ch] = Stats{Channel: ch + 1, Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for i := 0; i < p.Len(); i++ {
		row := p.Row(i)
		for ch, raw := range row.Raw {
			v := params.Scale(raw, 1)
			sum[ch] += v
			sumSq[ch] += v * v
			out[ch].Min = math.Min(out[ch].Min, v)
			out[ch].Max = math.Max(out[ch].Max, v)
		}
	}
	n := float64(p.Len())
	for ch := range out {
		out[ch].Mean = sum[ch] / n
		out[ch].RMS = math.Sqrt(sumSq[ch] / n)
		variance := sumSq[ch]/n - out[ch].Mean*out[ch].Mean
		out[ch].StdDev = math.Sqrt(math.Max(variance, 0))
	}
	return out
}

func displayStatistics(stats []Stats) {
	fmt.Printf("📊 Channel Statistics (scaled, gain 1):\n")
	fmt.Printf("┌─────────┬────────────┬────────────┬────────────┬────────────┬────────────┐\n")
	fmt.Printf("│ Channel │        Min │        Max │       Mean │        RMS │    Std Dev │\n")
	fmt.Printf("├─────────┼────────────┼────────────┼────────────┼────────────┼────────────┤\n")
	for _, s := range stats {
		fmt.Printf("│ %7d │ %10.2f │ %10.2f │ %10.2f │ %10.2f │ %10.2f │\n", s.Channel, s.Min, s.Max, s.Mean, s.RMS, s.StdDev)
	}
	fmt.Printf("└─────────┴────────────┴────────────┴────────────┴────────────┴────────────┘\n\n")
}

// channelValues returns the scaled values of one channel, evenly
// decimated to at most limit points
func channelValues(p *recorder.Playback, params protocol.Params, ch, limit int) []float64 {
	step := 1
	if limit > 0 && p.Len() > limit {
		step = (p.Len() + limit - 1) / limit
	}
	values := make([]float64, 0, p.Len()/step+1)
	for i := 0; i < p.Len(); i += step {
		values = append(values, params.Scale(p.Row(i).Raw[ch], 1))
	}
	return values
}

// renderGraph draws values as a width x height character plot
func renderGraph(values []float64, duration float64, width, height int) string {
	var b strings.Builder
	if len(values) == 0 || width < 2 || height < 2 {
		b.WriteString("📈 Signal Graph: No samples to display\n\n")
		return b.String()
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1e-6
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}
	for i, v := range values {
		x := 0
		if len(values) > 1 {
			x = i * (width - 1) / (len(values) - 1)
		}
		y := int(float64(height-1) * (1 - (v-lo)/(hi-lo)))
		y = max(0, min(height-1, y))
		if grid[y][x] == ' ' {
			grid[y][x] = '*'
		} else {
			grid[y][x] = '#'
		}
	}

	fmt.Fprintf(&b, "📈 Channel %d over time (%d points, %.3f s)\n", graphChannel, len(values), duration)
	for i, row := range grid {
		label := lo + float64(height-1-i)/float64(height-1)*(hi-lo)
		fmt.Fprintf(&b, "%10.2f |%s|\n", label, string(row))
	}
	fmt.Fprintf(&b, "           +%s+\n", strings.Repeat("-", width))
	end := fmt.Sprintf("%.3fs", duration)
	fmt.Fprintf(&b, "           0%s%s\n", strings.Repeat(" ", max(1, width-len(end))), end)
	b.WriteString("\nLegend: * = data point, # = multiple points\n\n")
	return b.String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
