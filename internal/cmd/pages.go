package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/observability"
	"github.com/cirrushq/cirrus/pkg/output"
)

var pagesCmd = &cobra.Command{
	Use:   "pages [connector]",
	Short: "Enumerate pages of a document connector",
	Long: `Enumerate every page a document connector can reach, as
cirrus.page.v1 JSONL records grouped by workspace.

Connector-specific parameters go through repeated --param flags
(for example --param space_id=DOCS for confluence).

Examples:
  cirrus pages confluence -p my-confluence
  cirrus pages github --cred access_token=ghp_... --param owner=acme`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPages,
}

var pagesParams []string

func init() {
	rootCmd.AddCommand(pagesCmd)
	pagesCmd.Flags().StringArrayVar(&pagesParams, "param", nil, "Connector parameter key=value (repeatable)")
}

func runPages(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	connectorArg := ""
	if len(args) > 0 {
		connectorArg = args[0]
	}
	name, creds, err := resolveCredentials(connectorArg)
	if err != nil {
		return err
	}

	pairs, err := parsePairs("param", pagesParams)
	if err != nil {
		return err
	}
	params := make(map[string]any, len(pairs))
	for k, v := range pairs {
		params[k] = v
	}

	doc, err := registry.Document(name, creds, observability.CLILogger)
	if err != nil {
		return err
	}

	resp, err := doc.GetPages(ctx, params)
	if err != nil {
		return err
	}

	writer := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), name)
	defer func() { _ = writer.Close() }()

	var count int64
	for i := range resp.Infos {
		info := &resp.Infos[i]
		for j := range info.Pages {
			if err := writer.WritePage(ctx, output.NewPageRecord(info, &info.Pages[j])); err != nil {
				return err
			}
			count++
		}
	}
	return writer.WriteSummary(ctx, &output.SummaryRecord{Entries: count})
}
