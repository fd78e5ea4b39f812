// Command llm-relay runs the LLM reverse proxy and administers its settings.
//
// Usage:
//
//	llm-relay [serve] [-c FILE] [-d]
//	llm-relay config list|get|set|delete ...
//	llm-relay version
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	loadEnvFiles()

	if len(os.Args) < 2 {
		os.Exit(runServe(nil))
	}

	switch cmd := os.Args[1]; cmd {
	case "serve":
		os.Exit(runServe(os.Args[2:]))
	case "config":
		os.Exit(runConfigCommand(os.Args[2:], os.Stdin, os.Stdout))
	case "version", "-v", "--version":
		fmt.Printf("llm-relay %s\n", version)
	case "help", "-h", "--help":
		printHelp()
	default:
		// Bare flags mean "serve".
		if strings.HasPrefix(cmd, "-") {
			os.Exit(runServe(os.Args[1:]))
		}
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", cmd)
		printHelp()
		os.Exit(1)
	}
}

// loadEnvFiles loads .env from the working directory, then the file named by
// LLM_RELAY_ENV_FILE. Variables already in the environment win.
func loadEnvFiles() {
	files := []string{".env"}
	if extra := os.Getenv("LLM_RELAY_ENV_FILE"); extra != "" {
		files = append(files, extra)
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", f, err)
		}
	}
}

func printHelp() {
	fmt.Println("LLM Relay - credential-pooling reverse proxy for LLM APIs")
	fmt.Println()
	fmt.Println("Usage: llm-relay [COMMAND] [OPTIONS]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                Start the gateway (default)")
	fmt.Println("  config list          Show every dynamic setting (credentials masked)")
	fmt.Println("  config get NAME      Show one setting")
	fmt.Println("  config set NAME VAL  Write a setting (VAL of - reads stdin)")
	fmt.Println("  config delete NAME   Remove a setting")
	fmt.Println("  version              Print the version")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE    Bootstrap config (YAML)")
	fmt.Println("  -d, --debug          Enable debug logging")
	fmt.Println("  --reveal             Print credentials unmasked (config get/list)")
	fmt.Println("  -h, --help           Show this help")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  llm-relay -c relay.yaml")
	fmt.Println("  llm-relay config set api_keys '[\"key-1\",\"key-2\"]'")
	fmt.Println("  llm-relay config set gcp_credentials - < service-accounts.json")
}
