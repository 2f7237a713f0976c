// Package cmd implements the cirrus command line interface. Commands
// resolve connectors through the shared registry, read credentials from
// named profiles or --cred flags, and emit machine-readable JSONL output
// suitable for pipeline integration.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/config"
	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

var rootCmd = &cobra.Command{
	Use:   "cirrus",
	Short: "Browse, download, and invoke cloud data sources",
	Long: `cirrus connects to cloud drives, document stores, tool APIs, and model
providers through one uniform connector contract.

Credentials come from a named profile in the config file
(~/.config/cirrus/config.yaml) via --profile, or directly from repeated
--cred key=value flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootConfigPath string
	rootProfile    string
	rootCreds      []string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Config file path (default ~/.config/cirrus/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootProfile, "profile", "p", "", "Named credential profile from the config file")
	rootCmd.PersistentFlags().StringArrayVar(&rootCreds, "cred", nil, "Credential key=value pair (repeatable)")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		observability.CLILogger.Error("Command failed", zap.Error(err))
	}
	return err
}

// loadConfig reads the config file selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(rootConfigPath)
}

// resolveCredentials merges profile credentials with --cred overrides.
// The profile also supplies the connector name when the command's
// connector argument is empty.
func resolveCredentials(connectorArg string) (name string, creds datasource.Credentials, err error) {
	creds = datasource.Credentials{}
	name = connectorArg

	if rootProfile != "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", nil, err
		}
		prof, err := cfg.Profile(rootProfile)
		if err != nil {
			return "", nil, err
		}
		if name == "" {
			name = prof.Connector
		}
		creds = prof.DatasourceCredentials()
	}

	for _, pair := range rootCreds {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("malformed --cred %q, expected key=value", pair)
		}
		creds[k] = v
	}

	if name == "" {
		return "", nil, fmt.Errorf("no connector given: pass one as an argument or select a profile")
	}
	return name, creds, nil
}

// parsePairs splits repeated key=value flags into a map.
func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed --%s %q, expected key=value", flag, pair)
		}
		out[k] = v
	}
	return out, nil
}
