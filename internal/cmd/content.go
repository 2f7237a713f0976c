package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/output"
)

var contentCmd = &cobra.Command{
	Use:   "content [connector] <page-id>",
	Short: "Fetch one page's content from a document connector",
	Long: `Fetch a page identified by an ID returned from pages.

By default the page's content variable is printed raw to stdout. With
--output jsonl every variable (content, title, page_id, ...) is emitted
as a cirrus.variable.v1 record.

Examples:
  cirrus content confluence -p my-confluence 123456
  cirrus content github -p gh 'file:acme/widgets:README.md' --output jsonl`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runContent,
}

var (
	contentWorkspace string
	contentType      string
	contentOutput    string
)

func init() {
	rootCmd.AddCommand(contentCmd)
	contentCmd.Flags().StringVar(&contentWorkspace, "workspace", "", "Workspace ID the page belongs to")
	contentCmd.Flags().StringVar(&contentType, "type", "", "Page type hint (connector-specific)")
	contentCmd.Flags().StringVar(&contentOutput, "output", "raw", "Output format (raw|jsonl)")
}

func runContent(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if contentOutput != "raw" && contentOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected raw or jsonl"))
	}

	connectorArg := ""
	pageID := args[0]
	if len(args) == 2 {
		connectorArg = args[0]
		pageID = args[1]
	}

	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}
	doc, err := registry.Document(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	stream, err := doc.GetContent(ctx, datasource.PageContentRequest{
		WorkspaceID: contentWorkspace,
		PageID:      pageID,
		Type:        contentType,
	})
	if err != nil {
		return err
	}

	if contentOutput == "jsonl" {
		writer := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), name)
		defer func() { _ = writer.Close() }()
		for stream.Next() {
			v := stream.Variable()
			if err := writer.WriteVariable(ctx, &output.VariableRecord{Name: v.Name, Value: v.Value}); err != nil {
				return err
			}
		}
		return nil
	}

	vars := stream.Collect()
	content, ok := vars["content"]
	if !ok {
		return fmt.Errorf("page %q produced no content variable", pageID)
	}
	fmt.Fprintln(cmd.OutOrStdout(), content)
	return nil
}
