package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/c360/gatherd/server"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Port        int
	PortSet     bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("GATHERD_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: GATHERD_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("GATHERD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: GATHERD_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("GATHERD_LOG_FORMAT", "json"),
		"Log format: json, text (env: GATHERD_LOG_FORMAT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShowHelp {
		fs.Usage()
	}

	// The historical invocation is "gatherd <port>"; a missing or
	// unparseable port falls back to the default rather than failing.
	cfg.Port = server.DefaultPort
	if arg := fs.Arg(0); arg != "" {
		cfg.PortSet = true
		if port, err := strconv.Atoi(arg); err == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}

	return cfg, nil
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	_, _ = fmt.Fprintf(out, "%s %s - Power PMAC gather data server\n\n", appName, Version)
	_, _ = fmt.Fprintf(out, "Usage: %s [flags] [port]\n\n", appName)
	_, _ = fmt.Fprintf(out, "  port defaults to %d when absent or unparseable\n\nFlags:\n", server.DefaultPort)
	fs.PrintDefaults()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
