// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"xtplay/internal/config"
	xlog "xtplay/internal/log"
	"xtplay/internal/ui"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagDownload string
	flagQuality  string
	flagPlayer   string
	flagRelay    string
	flagNative   bool
	flagSecure   bool
	flagContinue bool
	flagJSON     bool
	flagDebug    bool
)

// defaultDownloadDir is the value of a bare -d: use download_dir from the config.
const defaultDownloadDir = "default"

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "xtplay",
	Short: "Watch Xtream Codes IPTV from the terminal",
	Long: `xtplay is a terminal client for Xtream Codes IPTV portals.
Browse live TV, movies and series, play them with mpv/vlc, or download with ffmpeg.
Without a saved account it runs in demo mode with sample content.`,
	Args:              cobra.NoArgs,
	PersistentPreRunE: loadConfig,
	RunE:              browseRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, ui.ErrCancelled) {
			fmt.Fprintln(os.Stderr, ui.Error(err))
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDownload, "download", "d", "", "Download to path instead of playing")
	rootCmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "Preferred HLS quality: 360 | 480 | 720 | 1080")
	rootCmd.PersistentFlags().Lookup("download").NoOptDefVal = defaultDownloadDir
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Media player: mpv | vlc | iina | celluloid | none")
	rootCmd.PersistentFlags().StringVar(&flagRelay, "relay", "", "Relay endpoint, e.g. http://127.0.0.1:8787/relay")
	rootCmd.PersistentFlags().BoolVar(&flagNative, "native", false, "Never use the relay")
	rootCmd.PersistentFlags().BoolVar(&flagSecure, "secure", false, "Refuse plain-http streams")
	rootCmd.PersistentFlags().BoolVarP(&flagContinue, "continue", "c", false, "Auto-resume from watch progress")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Output JSON instead of prompting")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(loginCmd, logoutCmd, accountsCmd, accountCmd)
	rootCmd.AddCommand(liveCmd, moviesCmd, seriesCmd)
	rootCmd.AddCommand(playCmd, resolveCmd)
	rootCmd.AddCommand(favoritesCmd, historyCmd)
	rootCmd.AddCommand(relayCmd, versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagRelay != "" {
		cfg.Transport.RelayURL = flagRelay
	}
	if flagNative {
		cfg.Transport.Native = true
	}
	if flagSecure {
		cfg.Playback.SecureContext = true
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	} else if level == "" {
		level = "warn"
	}
	xlog.Configure(xlog.Config{Level: level, Output: os.Stderr})
	return nil
}

// debugf logs a message if debug mode is enabled.
func debugf(format string, args ...any) {
	logger := xlog.WithComponent("cli")
	logger.Debug().Msgf(format, args...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("xtplay", Version)
	},
}
