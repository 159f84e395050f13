package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config, logger *Logger) {
	version := GetVersion()
	build := GetBuild()
	commit := GetGitCommit()

	redisState := "disabled (in-process events)"
	if config.Redis.Enabled() {
		redisState = "enabled"
	}
	kisEnv := "live"
	if config.Clients.KIS.IsMock {
		kisEnv = "mock"
	}

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 70
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		` .d8888b.  8888888 .d8888b.  888b    888 888     888 888b     d888`,
		`d88P  Y88b   888  d88P  Y88b 8888b   888 888     888 8888b   d8888`,
		`Y88b.        888  888    888 88888b  888 888     888 88888b.d88888`,
		` "Y888b.     888  888        888Y88b 888 888     888 888Y88888P888`,
		`    "Y88b.   888  888  88888 888 Y88b888 888     888 888 Y888P 888`,
		`      "888   888  888    888 888  Y88888 888     888 888  Y8P  888`,
		`Y88b  d88P   888  Y88b  d88P 888   Y8888 Y88b. .d88P 888   "   888`,
		` "Y8888P"  8888888 "Y8888P88 888    Y888  "Y88888P"  888       888`,
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s  Market Data Collection & Signal Analysis%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	kvPad := 16
	kvLines := [][2]string{
		{"Version", version},
		{"Build", build},
		{"Commit", commit},
		{"Environment", config.Environment},
		{"KIS", kisEnv},
		{"Collection", fmt.Sprintf("%s (workers: %d, days: %d)", config.Collection.Mode, config.Collection.Workers, config.Collection.Days)},
		{"Redis", redisState},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("commit", commit).
		Str("environment", config.Environment).
		Str("kis", kisEnv).
		Str("collection_mode", config.Collection.Mode).
		Int("collection_workers", config.Collection.Workers).
		Msg("Application started")
}

// PrintShutdownBanner displays the application shutdown banner to stderr.
func PrintShutdownBanner(logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 42
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  SIGNUM — SHUTTING DOWN%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n", hr)
	fmt.Fprintf(os.Stderr, "\n")

	logger.Info().Msg("Application shutting down")
}
