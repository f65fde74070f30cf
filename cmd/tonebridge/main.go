// Package main is the entry point for the tonebridge CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/james-see/tonebridge/internal/appversion"
	"github.com/james-see/tonebridge/internal/logger"
	"github.com/james-see/tonebridge/pkg/converter"
	"github.com/james-see/tonebridge/pkg/pulse"
	"github.com/james-see/tonebridge/pkg/tui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logLevel  string
	logFormat string
	log       *zap.Logger

	outputFile string
	apiURL     string

	pulseOpts = pulse.DefaultOptions()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tonebridge",
	Short: "Stream tones to and play melodies on a buzzer device",
	Long: `tonebridge runs and drives a tone device: a small process that sounds
streamed tones immediately and plays an uploaded melody in a loop.

Examples:
  tonebridge device --listen 127.0.0.1:7070 --http :8080
  tonebridge upload song.mid --play
  tonebridge upload song.bin --watch
  tonebridge stream 440:250 0:100 523:400
  tonebridge status
  tonebridge convert song.mid -o song.h
  tonebridge decode capture.pcm -o capture.bin
  tonebridge monitor --api http://localhost:8080`,
	Version:       appversion.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(logLevel, logFormat)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert between melody, MIDI, C header and WAV formats",
	Long:  `Detects the input format from its extension or content and writes the format implied by the output extension.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var decodeCmd = &cobra.Command{
	Use:   "decode <capture.pcm>",
	Short: "Recover a melody from a raw signed 8-bit PC speaker capture",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

var tuiCmd = &cobra.Command{
	Use:     "tui",
	Aliases: []string{"monitor"},
	Short:   "Launch interactive terminal UI with a live device monitor",
	RunE:    runTUI,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format (auto, console, json)")

	// Convert command
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (required)")
	_ = convertCmd.MarkFlagRequired("output")

	// Decode command
	decodeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default: input with .bin)")
	decodeCmd.Flags().IntVar(&pulseOpts.SampleRate, "rate", pulseOpts.SampleRate, "Capture sample rate in Hz")
	decodeCmd.Flags().Float64Var(&pulseOpts.Speed, "speed", pulseOpts.Speed, "Time base multiplier")
	decodeCmd.Flags().Float64Var(&pulseOpts.BaseFreq, "base", pulseOpts.BaseFreq, "Frequency of semitone 0 in Hz")
	decodeCmd.Flags().StringVar((*string)(&pulseOpts.Method), "method", string(pulseOpts.Method), "Binarization method (edge, threshold)")
	decodeCmd.Flags().IntVar(&pulseOpts.Threshold, "threshold", pulseOpts.Threshold, "Level (threshold) or minimum swing (edge)")
	decodeCmd.Flags().IntVar(&pulseOpts.WindowSize, "window", pulseOpts.WindowSize, "Edge detection window in samples")
	decodeCmd.Flags().IntVar(&pulseOpts.MinCycles, "min-cycles", pulseOpts.MinCycles, "Runs this short or shorter become silence")
	decodeCmd.Flags().BoolVar(&pulseOpts.Merge, "merge", pulseOpts.Merge, "Merge equal neighbouring notes")
	decodeCmd.Flags().IntVar(&pulseOpts.Smooth, "smooth", pulseOpts.Smooth, "Drop notes up to this many ms between equal notes")

	// TUI command
	tuiCmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Device HTTP API base URL; empty disables the monitor")

	// Add commands
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(tuiCmd)
}

// signalContext is cancelled on interrupt or terminate
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func getOutputPath(input, defaultExt string) string {
	if outputFile != "" {
		return outputFile
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + defaultExt
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	conv := converter.New(converter.WithLogger(log))

	if err := conv.ConvertFile(input, outputFile); err != nil {
		return err
	}
	fmt.Printf("Converted %s -> %s\n", input, outputFile)
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	input := args[0]
	output := getOutputPath(input, ".bin")

	conv := converter.New(converter.WithLogger(log), converter.WithPulse(pulseOpts))
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	// the input is raw PCM whatever its extension
	notes, err := conv.Decode(data, converter.FormatPCM)
	if err != nil {
		return err
	}

	format := converter.DetectFormat(output)
	result, err := conv.Encode(notes, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, result, 0644); err != nil {
		return err
	}

	fmt.Printf("Decoded %s -> %s (%d notes)\n", input, output, len(notes))
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	var remote tui.Remote
	if apiURL != "" {
		remote = tui.NewHTTPRemote(apiURL)
	}
	return tui.Run(remote)
}
