package main

import (
	"fmt"
	"strings"

	"github.com/compresr/llm-relay/internal/config"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	debug      bool
	reveal     bool
	help       bool
}

// parseFlags consumes known flags and returns the remaining positional args.
func parseFlags(args []string) (options, []string, error) {
	var (
		opts options
		rest []string
	)
	i := 0
	for i < len(args) {
		switch a := args[i]; a {
		case "-h", "--help":
			opts.help = true
			i++
		case "-c", "--config":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s requires a value", a)
			}
			opts.configPath = args[i+1]
			i += 2
		case "-d", "--debug":
			opts.debug = true
			i++
		case "--reveal":
			opts.reveal = true
			i++
		case "--":
			rest = append(rest, args[i+1:]...)
			i = len(args)
		default:
			if strings.HasPrefix(a, "--config=") {
				opts.configPath = strings.TrimPrefix(a, "--config=")
				i++
				continue
			}
			// "-" alone is a positional (stdin marker).
			if strings.HasPrefix(a, "-") && a != "-" {
				return opts, nil, fmt.Errorf("unknown option: %s", a)
			}
			rest = append(rest, a)
			i++
		}
	}
	return opts, rest, nil
}

// loadConfig reads the bootstrap file, or LLM_RELAY_CONFIG, or falls back
// to defaults when neither is set.
func loadConfig(opts options, getenv func(string) string) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = getenv("LLM_RELAY_CONFIG")
	}
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(path); err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Monitoring.LogLevel = "debug"
	} else if lvl := getenv("LOG_LEVEL"); lvl != "" {
		cfg.Monitoring.LogLevel = lvl
	}
	return cfg, nil
}
