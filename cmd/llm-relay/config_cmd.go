package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/compresr/llm-relay/internal/cascade"
	"github.com/compresr/llm-relay/internal/monitoring"
	"github.com/compresr/llm-relay/internal/pool"
	"github.com/compresr/llm-relay/internal/utils"
)

const configCommandTimeout = 30 * time.Second

// =============================================================================
// COMMAND
// =============================================================================

func runConfigCommand(args []string, stdin io.Reader, stdout io.Writer) int {
	opts, rest, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.help || len(rest) == 0 {
		printConfigHelp(stdout)
		return 0
	}

	cfg, err := loadConfig(opts, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	// Logs go to stderr so stdout stays scriptable.
	level := "warn"
	if opts.debug {
		level = "debug"
	}
	monitoring.SetupLogging(level, cfg.Monitoring.LogFormat, os.Stderr)

	c := newCascade(cfg, nil)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), configCommandTimeout)
	defer cancel()

	if err := execConfig(ctx, c, rest, opts.reveal, stdin, stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// execConfig runs one config subcommand against c.
func execConfig(ctx context.Context, c *cascade.Cascade, args []string, reveal bool, stdin io.Reader, stdout io.Writer) error {
	sub, args := args[0], args[1:]
	switch sub {
	case "list", "ls":
		return configList(ctx, c, reveal, stdout)
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: config get NAME")
		}
		return configGet(ctx, c, args[0], reveal, stdout)
	case "set":
		if len(args) != 2 {
			return fmt.Errorf("usage: config set NAME VALUE")
		}
		value := args[1]
		if value == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return fmt.Errorf("failed to read value from stdin: %w", err)
			}
			value = string(data)
		}
		if err := configSet(ctx, c, args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "[OK] %s updated\n", args[0])
		return nil
	case "delete", "rm", "unset":
		if len(args) != 1 {
			return fmt.Errorf("usage: config delete NAME")
		}
		if err := checkName(args[0]); err != nil {
			return err
		}
		if err := c.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "[OK] %s deleted\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown config command: %s", sub)
	}
}

func printConfigHelp(w io.Writer) {
	fmt.Fprintln(w, "Manage dynamic settings")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: llm-relay config COMMAND [OPTIONS]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  list                 Show every setting")
	fmt.Fprintln(w, "  get NAME             Show one setting")
	fmt.Fprintln(w, "  set NAME VALUE       Write a setting (VALUE of - reads stdin, [] or \"\" deletes)")
	fmt.Fprintln(w, "  delete NAME          Remove a setting")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Settings:")
	for _, name := range pool.Names() {
		fmt.Fprintf(w, "  %-22s %s\n", name, settingHelp[name])
	}
}

var settingHelp = map[string]string{
	pool.NameTriggerKeys:        "credentials that trigger pool substitution (list)",
	pool.NameAPIKeys:            "rotation pool (list)",
	pool.NameFallbackKey:        "pinned credential for stateful requests",
	pool.NameFallbackModels:     "models that always use the fallback key (list)",
	pool.NameVertexModels:       "models served by the cloud ML platform (list)",
	pool.NameAPIRetryLimit:      "attempt budget for pooled requests (integer >= 1)",
	pool.NameGCPCredentials:     "service-account key files (JSON array)",
	pool.NameGCPDefaultLocation: "cloud ML region",
	pool.NameAPIMappings:        "passthrough prefix -> base URL (JSON object)",
}

// =============================================================================
// READ
// =============================================================================

func rawParser(raw string) (string, error) { return raw, nil }

func configList(ctx context.Context, c *cascade.Cascade, reveal bool, w io.Writer) error {
	for _, name := range pool.Names() {
		raw := cascade.Get(ctx, c, name, rawParser, "")
		fmt.Fprintf(w, "%-22s %s\n", name, describe(name, raw, reveal))
	}
	return nil
}

func configGet(ctx context.Context, c *cascade.Cascade, name string, reveal bool, w io.Writer) error {
	if err := checkName(name); err != nil {
		return err
	}
	raw := cascade.Get(ctx, c, name, rawParser, "")
	fmt.Fprintln(w, describe(name, raw, reveal))
	return nil
}

// describe renders a stored value for display. Credentials are masked
// unless reveal is set; a service-account list shows identities only.
func describe(name, raw string, reveal bool) string {
	if strings.TrimSpace(raw) == "" {
		return "(unset)"
	}
	suffix := ""
	if _, ok := os.LookupEnv(cascade.EnvName(name)); ok {
		suffix = "  (env " + cascade.EnvName(name) + ")"
	}
	if reveal {
		return strings.TrimSpace(raw) + suffix
	}

	switch name {
	case pool.NameTriggerKeys, pool.NameAPIKeys:
		keys, err := cascade.StringList(raw)
		if err != nil {
			return "(invalid: " + err.Error() + ")" + suffix
		}
		return mustJSON(utils.MaskKeys(keys)) + suffix
	case pool.NameFallbackKey:
		key, err := cascade.NonEmptyString(raw)
		if err != nil {
			return "(invalid: " + err.Error() + ")" + suffix
		}
		return utils.MaskKeyShort(key) + suffix
	case pool.NameGCPCredentials:
		accounts, err := pool.ParseServiceAccounts(raw)
		if err != nil {
			return "(invalid: " + err.Error() + ")" + suffix
		}
		ids := make([]string, len(accounts))
		for i, sa := range accounts {
			ids[i] = sa.ClientEmail + " (" + sa.ProjectID + ")"
		}
		return mustJSON(ids) + suffix
	}
	return strings.TrimSpace(raw) + suffix
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// =============================================================================
// WRITE
// =============================================================================

func checkName(name string) error {
	if _, ok := settingHelp[name]; !ok {
		return fmt.Errorf("unknown setting %q (known: %s)", name, strings.Join(pool.Names(), ", "))
	}
	return nil
}

// configSet validates value for name and writes it in canonical form.
// Lists are stored as JSON arrays whichever encoding was given.
func configSet(ctx context.Context, c *cascade.Cascade, name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if cascade.IsEmptyValue(value) {
		return c.Delete(ctx, name)
	}

	switch name {
	case pool.NameTriggerKeys, pool.NameAPIKeys, pool.NameFallbackModels, pool.NameVertexModels:
		items, err := cascade.StringList(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return c.SetJSON(ctx, name, items)

	case pool.NameFallbackKey, pool.NameGCPDefaultLocation:
		s, err := cascade.NonEmptyString(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return c.Set(ctx, name, s)

	case pool.NameAPIRetryLimit:
		n, err := cascade.PositiveInt(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return c.SetJSON(ctx, name, n)

	case pool.NameGCPCredentials:
		accounts, err := pool.ParseServiceAccounts(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for i, sa := range accounts {
			if err := sa.Validate(); err != nil {
				return fmt.Errorf("%s: service account %d: %w", name, i, err)
			}
		}
		return c.Set(ctx, name, strings.TrimSpace(value))

	case pool.NameAPIMappings:
		raw, err := cascade.JSON[map[string]string]()(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		mappings := make(map[string]string, len(raw))
		for prefix, base := range raw {
			prefix = pool.NormalizePrefix(prefix)
			if pool.IsReservedPrefix(prefix) {
				return fmt.Errorf("%s: prefix %s is reserved", name, prefix)
			}
			if prefix == "" || strings.TrimSpace(base) == "" {
				return fmt.Errorf("%s: empty prefix or base URL", name)
			}
			mappings[prefix] = strings.TrimRight(strings.TrimSpace(base), "/")
		}
		return c.SetJSON(ctx, name, mappings)
	}
	return c.Set(ctx, name, value)
}
