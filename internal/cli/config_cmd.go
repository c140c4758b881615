package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/docent/internal/config"
)

const redactedValue = "(redacted)"

// secretKeys are leaf keys whose values are hidden unless --reveal is given.
var secretKeys = map[string]bool{
	"token":    true,
	"password": true,
	"apikey":   true,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

// loadConfigTree parses key into path segments and loads the raw config
// tree those segments index into. Shared prologue of get/set/unset.
func loadConfigTree(key string) ([]string, map[string]any, error) {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return nil, nil, err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	return path, raw, nil
}

func newConfigGetCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, raw, err := loadConfigTree(args[0])
			if err != nil {
				return err
			}

			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}

			if !reveal {
				val = redactValue(path[len(path)-1], val)
			}
			return printValue(val)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print credential values instead of redacting them")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, raw, err := loadConfigTree(args[0])
			if err != nil {
				return err
			}

			value := parseValue(args[1])
			config.SetValueAtPath(raw, path, value)

			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}
			fmt.Printf("Set %s = %v\n", args[0], value)

			// Warn about issues the new value introduces, without
			// rejecting the write.
			if cfg, err := config.Load(paths.Config); err == nil {
				for _, issue := range config.Validate(&cfg) {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, raw, err := loadConfigTree(args[0])
			if err != nil {
				return err
			}

			if !config.UnsetValueAtPath(raw, path) {
				return fmt.Errorf("key %q not found", args[0])
			}

			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}

			fmt.Printf("Unset %s\n", args[0])
			return nil
		},
	}
}

// newConfigListCmd prints the effective configuration: file contents merged
// with defaults and environment overrides, the way serve sees it.
func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			redactConfig(&cfg)

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(paths.Config)
		},
	}
}

// redactValue hides credential leaves. Maps are walked so getting a whole
// section (e.g. server.auth) doesn't leak what getting the leaf would hide.
func redactValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		if secretKeys[strings.ToLower(key)] && val != "" {
			return redactedValue
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = redactValue(k, child)
		}
		return out
	default:
		return v
	}
}

func redactConfig(cfg *config.Config) {
	fields := []*string{
		&cfg.Server.Auth.Token,
		&cfg.Server.Auth.Password,
		&cfg.Redis.Password,
		&cfg.LLM.APIKey,
		&cfg.Embedding.APIKey,
		&cfg.Vector.Password,
		&cfg.Agent.GitHub.Token,
	}
	for _, f := range fields {
		if *f != "" {
			*f = redactedValue
		}
	}
}

// printValue outputs a value in a human-readable format.
func printValue(v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	default:
		fmt.Println(v)
	}
	return nil
}

// parseValue interprets a literal as bool, int or float before falling
// back to string. Only the exact words true/false become booleans so
// numeric strings like "1" stay numbers.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
