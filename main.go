// MYOstack Collector - multichannel EMG acquisition tool
// This program streams sensor frames from the serial link (or replays a
// recording), filters each channel, tracks its envelope and spectrum and
// optionally records the raw stream to disk.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"myostack-collector/internal/config"
	"myostack-collector/internal/logging"
	"myostack-collector/internal/serialport"
	"myostack-collector/internal/session"
	"myostack-collector/internal/version"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command line flag variables
var (
	cfgFile      string        // Configuration file path
	protocolName string        // Sensor protocol version
	portID       string        // Serial port identifier
	channels     int           // Active channel count
	playbackFile string        // Recording to replay instead of the serial link
	record       bool          // Record the live stream
	duration     time.Duration // Stop after this long (0 runs until interrupted)
	spectrumCh   int           // Channel whose spectrum the device streams
	verbose      bool          // Enable verbose logging
	showVersion  bool          // Show version information
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "myostack",
	Short: "Multichannel EMG acquisition and monitoring tool",
	Long: `MYOstack Collector reads 9-channel EMG frames from the sensor over a
serial link, applies mains notch and band-pass filtering, tracks per-channel
muscle activation and spectra, and records the raw stream for later analysis.

Example usage:
  myostack --port /dev/ttyUSB0 --record
  myostack --playback recordings/myo_20240101_120000_ab12cd34.bin
  myostack ports`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.Describe("myostack"))
			return nil
		}
		return runMonitor()
	},
	SilenceUsage: true,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports the sensor may be attached to",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialport.NewSystemOpener().ListAvailable()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for i, p := range ports {
			marker := ""
			if i == len(ports)-1 {
				marker = " (default)"
			}
			fmt.Printf("%s%s\n", p, marker)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&protocolName, "protocol", "v1.1", "sensor protocol version (v1.0, v1.1, v2.0)")
	rootCmd.PersistentFlags().IntVarP(&channels, "channels", "n", 9, "number of active channels (1-9)")

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&portID, "port", "p", "", "serial port (default: last listed port)")
	rootCmd.Flags().StringVar(&playbackFile, "playback", "", "replay a .bin recording instead of the serial link")
	rootCmd.Flags().BoolVarP(&record, "record", "r", false, "record the live stream")
	rootCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this duration (0 runs until interrupted)")
	rootCmd.Flags().IntVar(&spectrumCh, "spectrum-channel", 0, "channel whose spectrum the device streams (0-8)")
	rootCmd.Flags().String("output", "./recordings", "recording output directory")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("device.protocol", rootCmd.PersistentFlags().Lookup("protocol"))
	viper.BindPFlag("device.channels", rootCmd.PersistentFlags().Lookup("channels"))
	viper.BindPFlag("device.port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("recording.output_dir", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(portsCmd, configCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// MYOSTACK_DEVICE_PORT overrides device.port
	viper.SetEnvPrefix("MYOSTACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file, environment and flags on the defaults
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyTunables pushes the settings that may change while running
func applyTunables(s *session.Session, cfg *config.Config, log *logrus.Logger) {
	if err := s.SetFilterConfig(cfg.Filters); err != nil {
		log.WithError(err).Warn("Some filter settings were rejected")
	}
	for ch, g := range cfg.Device.Gains {
		if err := s.SetGain(ch, g); err != nil {
			log.WithError(err).WithField("channel", ch).Warn("Gain rejected")
		}
	}
}

// runMonitor is the main application logic
func runMonitor() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := session.New(session.Options{
		Protocol:       params,
		Channels:       cfg.Device.Channels,
		PortID:         cfg.Device.Port,
		Fs:             afero.NewOsFs(),
		Logger:         logrus.NewEntry(log),
		ScrubThreshold: cfg.Session.ScrubThreshold,
		PlaybackSpeed:  cfg.Session.PlaybackSpeed,
		ListenerDelay:  cfg.Session.ListenerDelay,
		MailboxLimit:   cfg.Session.MailboxLimit,
		RecordDir:      cfg.Recording.OutputDir,
		RecordPrefix:   cfg.Recording.FilePrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer s.Close()

	applyTunables(s, cfg, log)

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(func(e fsnotify.Event) {
			next := config.DefaultConfig()
			if err := viper.Unmarshal(next); err != nil {
				log.WithError(err).Warn("Ignoring unreadable config change")
				return
			}
			log.WithField("file", e.Name).Info("Config changed, applying filter and gain settings")
			applyTunables(s, next, log)
		})
		viper.WatchConfig()
	}

	fmt.Printf("MYOstack Collector %s starting...\n", version.Info().Version)
	fmt.Printf("Protocol: %s (%.0f Hz, %d baud)\n", params.Version, params.SampleRate, params.BaudRate)
	fmt.Printf("Channels: %d, window %d samples\n", cfg.Device.Channels, s.DataWidth())

	if playbackFile != "" {
		if err := s.LoadPlayback(playbackFile); err != nil {
			return fmt.Errorf("failed to load playback: %w", err)
		}
		fmt.Printf("Playback: %s (%d rows)\n", playbackFile, s.PlaybackLength())
	} else {
		if err := s.SetMode(session.Live); err != nil {
			return err
		}
		port := cfg.Device.Port
		if port == "" {
			port = "auto"
		}
		fmt.Printf("Port: %s\n", port)
		if err := s.SetSpectrumChannel(spectrumCh); err != nil {
			log.WithError(err).Warn("Spectrum channel not sent")
		}
		if record {
			meta, err := s.StartRecording()
			if err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			fmt.Printf("Recording: session %s into %s\n", meta.SessionID, cfg.Recording.OutputDir)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
		s.Stop()
	}()
	if duration > 0 {
		time.AfterFunc(duration, s.Stop)
	}

	return tickLoop(s, cfg.Session.TickInterval, log)
}

// tickLoop drives the session until it is stopped or the playback ends
func tickLoop(s *session.Session, interval time.Duration, log *logrus.Logger) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var lastPortErr string
	lastStatus := time.Now()
	for range timer.C {
		res, err := s.Tick()

		var portErr *serialport.PortUnavailableError
		switch {
		case errors.As(err, &portErr):
			if msg := portErr.Error(); msg != lastPortErr {
				log.WithError(err).Warn("Sensor not connected, polling")
				lastPortErr = msg
			}
		case err != nil:
			log.WithError(err).Warn("Tick failed")
		default:
			if lastPortErr != "" {
				// Reconnected: the device forgot the channel selection
				if err := s.SetSpectrumChannel(s.SpectrumChannel()); err != nil {
					log.WithError(err).Warn("Spectrum channel not sent")
				}
			}
			lastPortErr = ""
		}

		if res.Mode == session.Idle {
			fmt.Printf("Stopped after %d rows.\n", res.Total)
			return nil
		}
		if playbackFile != "" && res.Mode == session.Paused {
			fmt.Printf("\nPlayback finished at row %d.\n", res.PlaybackIndex)
			return nil
		}

		if time.Since(lastStatus) >= time.Second {
			printStatus(s, res)
			lastStatus = time.Now()
		}

		// The session asks for more time when filtering is expensive
		next := interval
		if res.SuggestedDelay > next {
			next = res.SuggestedDelay
		}
		timer.Reset(next)
	}
	return nil
}

func printStatus(s *session.Session, res session.TickResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] t=%7.2fs rows=%d", res.Mode, s.LastTimestamp(), res.Total)
	if s.Recording() {
		b.WriteString(" REC")
	}
	b.WriteString(" |")
	for _, level := range s.GetActivationLevels() {
		fmt.Fprintf(&b, " %6.1f", level)
	}
	fmt.Println(b.String())
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
