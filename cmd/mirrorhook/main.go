package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schaermu/mirrorhook/internal/config"
	"github.com/schaermu/mirrorhook/internal/gitrepo"
	"github.com/schaermu/mirrorhook/internal/mirror"
	"github.com/schaermu/mirrorhook/internal/provision"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	gitDir    string
	dryRun    bool
)

const defaultConfigPath = "/etc/mirrorhook/config.yaml"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mirrorhook",
	Short: "Mirror pushed refs to a remote repository",
	Long: `mirrorhook is a git post-receive hook that replicates a configurable subset
of the refs updated by a push to a remote repository, force-updating the
remote so it exactly tracks the source.

When no remote is configured and mirror.gh-create is "true", the destination
repository is created on GitHub first and its push URL is persisted back into
git config for subsequent pushes.

All settings live in the repository's git config under the mirror.* section;
an optional site defaults file provides host-wide values.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one hook invocation",
	Long: `Run reads the post-receive event stream ("<old-sha> <new-sha> <ref>" lines)
from standard input, decides which of the updated refs are mirrored, and
pushes them to the configured remote in a single forced transfer.

Install it as the repository's post-receive hook:

  printf '#!/bin/sh\nexec mirrorhook run "$@"\n' > hooks/post-receive
  chmod +x hooks/post-receive

A push touching no mirrored ref is a successful no-op.`,
	RunE: runHook,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mirrorhook %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "site defaults file (default is "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&gitDir, "git-dir", "", "repository to operate on (default is the working directory)")

	// Run command flags
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the refs that would be mirrored without pushing")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func runHook(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load site defaults
	defaults, err := loadDefaults(logger)
	if err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	// Create dependencies
	gitClient := gitrepo.NewShellClient(gitDir)

	settings, err := config.LoadSettings(ctx, gitClient, defaults)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	gitClient.SetAuthFiles(settings.SSHKeyFile, settings.TokenFile)

	creator := provision.NewGitHubCreator(settings.TokenFile, settings.APIBaseURL)

	// Create mirror engine
	engine := mirror.NewEngine(settings, gitClient, gitClient, creator, logger, dryRun)

	logger.Debug("starting mirror invocation",
		"remote", settings.Remote,
		"patterns", settings.RefPatterns,
		"create", settings.CreateEnabled)
	if err := engine.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("mirror failed", "error", err)
		return err
	}

	return nil
}

// setupLogger builds the diagnostic logger. It writes to stderr: stdout is
// reserved for the forwarding summary shown to the pushing user.
func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadDefaults(logger *slog.Logger) (*config.Defaults, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath
	} else if _, err := os.Stat(path); err != nil {
		// The built-in path may be absent, an explicitly given one may not.
		return nil, err
	}

	logger.Debug("loading site defaults", "path", path)

	return config.LoadDefaults(path)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
