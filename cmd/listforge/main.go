// Package main provides the listforge binary entry point. Listforge compiles
// adblock-style filter lists from third-party sources: it fetches and caches
// rule sources, tracks their reliability, and runs queued, batched, and
// scheduled compilation workflows over NATS.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "listforge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Filter list compiler",
		Long: `Listforge compiles adblock-style filter lists.

It fetches rule sources over the network (SSRF-guarded), tracks per-source
reliability, deduplicates and transforms rules, caches compiled artifacts,
and drives queued, batched, and scheduled compilation jobs over NATS.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the compilation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, newLogger(logLevel))
		},
	})

	compileCmd := &cobra.Command{
		Use:   "compile <config-file>",
		Short: "Compile a filter list once and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return runCompile(args[0], output, newLogger(logLevel))
		},
	}
	compileCmd.Flags().StringP("output", "o", "", "Write compiled list to file instead of stdout")
	cmd.AddCommand(compileCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Print the source health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(configPath, newLogger(logLevel))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
