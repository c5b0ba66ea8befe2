package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/renegade-fi/dealer-deploy/deploy"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "rotate":
		cmdRotate(os.Args[2:])
	case "show-config":
		cmdShowConfig(os.Args[2:])
	case "version":
		fmt.Printf("dealer-deploy %s (%s)\n", version, commit)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: dealer-deploy <command>

Commands:
  rotate       Roll the environment's service onto the newest image
  show-config  Print the effective configuration
  version      Print version`)
}

func parseConfig(name string, args []string) (deploy.Config, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to TOML config file")
	env := fs.String("env", "", "target environment (staging, prod, ...)")
	region := fs.String("region", "", "AWS region")
	mode := fs.String("mode", "", "deployment mode (pinned or floating)")
	component := fs.String("component", "", "deployed component name")
	floatingTag := fs.String("floating-tag", "", "mutable tag used in floating mode")
	endpointURL := fs.String("endpoint-url", "", "custom AWS endpoint URL")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Parse(args)

	cfg, err := deploy.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *env != "" {
		cfg.Environment = *env
	}
	if *region != "" {
		cfg.Region = *region
	}
	if *mode != "" {
		cfg.Mode = deploy.Mode(*mode)
	}
	if *component != "" {
		cfg.Component = *component
	}
	if *floatingTag != "" {
		cfg.FloatingTag = *floatingTag
	}
	if *endpointURL != "" {
		cfg.EndpointURL = *endpointURL
	}
	return cfg, *logLevel
}

func cmdRotate(args []string) {
	cfg, logLevel := parseConfig("rotate", args)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "dealer-deploy").Logger().
		Level(level)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Info().
		Str("version", version).
		Str("environment", cfg.Environment).
		Str("mode", string(cfg.Mode)).
		Msg("starting rotation")

	ctx := context.Background()
	clients, err := deploy.NewAWSClients(ctx, cfg.Region, cfg.EndpointURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init AWS clients")
	}

	rotator, err := deploy.NewRotator(cfg, clients, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build rotation strategy")
	}

	if err := rotator.Rotate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("rotation aborted")
	}
	logger.Info().Msg("rotation complete")
}

func cmdShowConfig(args []string) {
	cfg, _ := parseConfig("show-config", args)
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
