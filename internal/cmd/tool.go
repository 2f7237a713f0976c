package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/output"
	"github.com/cirrushq/cirrus/pkg/tool"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "List and invoke tool provider operations",
}

var toolListCmd = &cobra.Command{
	Use:   "list [provider]",
	Short: "List a provider's tools",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToolList,
}

var toolInvokeCmd = &cobra.Command{
	Use:   "invoke [provider] <tool>",
	Short: "Invoke one tool operation",
	Long: `Invoke a tool and emit its messages as cirrus.message.v1 records.

Examples:
  cirrus tool invoke spotify search -p my-spotify --param query="miles davis"
  cirrus tool invoke zoom create_meeting -p zoom --param topic="standup"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runToolInvoke,
}

var toolInvokeParams []string

func init() {
	rootCmd.AddCommand(toolCmd)
	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolInvokeCmd)
	toolInvokeCmd.Flags().StringArrayVar(&toolInvokeParams, "param", nil, "Tool parameter key=value (repeatable)")
}

func runToolList(cmd *cobra.Command, args []string) error {
	connectorArg := ""
	if len(args) > 0 {
		connectorArg = args[0]
	}
	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}
	provider, err := registry.Provider(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}
	for _, t := range provider.Tools() {
		fmt.Fprintln(cmd.OutOrStdout(), t.Name())
	}
	return nil
}

func runToolInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	connectorArg := ""
	toolName := args[0]
	if len(args) == 2 {
		connectorArg = args[0]
		toolName = args[1]
	}

	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}
	provider, err := registry.Provider(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	var selected tool.Tool
	for _, t := range provider.Tools() {
		if t.Name() == toolName {
			selected = t
			break
		}
	}
	if selected == nil {
		return fmt.Errorf("provider %q has no tool %q", name, toolName)
	}

	pairs, err := parsePairs("param", toolInvokeParams)
	if err != nil {
		return err
	}
	params := make(map[string]any, len(pairs))
	for k, v := range pairs {
		params[k] = v
	}

	stream, err := selected.Invoke(ctx, params)
	if err != nil {
		return err
	}

	writer := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), name)
	defer func() { _ = writer.Close() }()

	for stream.Next() {
		msg := stream.Message()
		rec := &output.MessageRecord{
			MessageType: string(msg.Type),
			Text:        msg.Text,
			JSON:        msg.JSON,
			Name:        msg.Name,
			Value:       msg.Value,
		}
		if err := writer.WriteMessage(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
