package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

var validateCmd = &cobra.Command{
	Use:   "validate <kind> [connector]",
	Short: "Probe a connector's credentials with a live call",
	Long: `Construct a connector and run its credential probe.

Kind is one of: drive, document, tool, model. Model probes send a
one-token completion, so --model is required for kind "model".

Examples:
  cirrus validate drive aws_s3 -p prod
  cirrus validate tool spotify --cred access_token=...
  cirrus validate model openai --cred api_key=sk-... --model gpt-4o-mini`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runValidate,
}

var validateModel string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateModel, "model", "", "Model to probe (kind \"model\" only)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind := args[0]

	connectorArg := ""
	if len(args) == 2 {
		connectorArg = args[1]
	}
	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}

	logger := observability.CLILogger

	switch kind {
	case "drive":
		drive, err := registry.Drive(name, creds, logger)
		if err != nil {
			return err
		}
		validator, ok := drive.(datasource.CredentialValidator)
		if !ok {
			return fmt.Errorf("drive connector %q does not support credential probing", name)
		}
		if err := validator.ValidateCredentials(ctx, creds); err != nil {
			return err
		}
	case "document":
		doc, err := registry.Document(name, creds, logger)
		if err != nil {
			return err
		}
		validator, ok := doc.(datasource.CredentialValidator)
		if !ok {
			return fmt.Errorf("document connector %q does not support credential probing", name)
		}
		if err := validator.ValidateCredentials(ctx, creds); err != nil {
			return err
		}
	case "tool":
		provider, err := registry.Provider(name, creds, logger)
		if err != nil {
			return err
		}
		if err := provider.ValidateCredentials(ctx, creds); err != nil {
			return err
		}
	case "model":
		if validateModel == "" {
			return fmt.Errorf("--model is required for kind \"model\"")
		}
		adapter, err := registry.Adapter(name, creds, logger)
		if err != nil {
			return err
		}
		if err := adapter.ValidateCredentials(ctx, creds, validateModel); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown kind %q (expected drive, document, tool, or model)", kind)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s credentials OK\n", name)
	return nil
}
